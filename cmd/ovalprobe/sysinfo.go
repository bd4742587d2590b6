package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/25smoking/ovalprobe/internal/sysinfo"
)

var sysinfoCmd = &cobra.Command{
	Use:   "sysinfo",
	Short: "输出系统特征头部的主机信息",
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := sysinfo.Collect(cmd.Context())
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	},
}
