package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/25smoking/ovalprobe/internal/digest"
	"github.com/25smoking/ovalprobe/internal/oval"
	"github.com/25smoking/ovalprobe/internal/probe"
	"github.com/25smoking/ovalprobe/internal/probes/filehash"
)

var probeDigest string

// probeCmd 是进程外探针的入口，stdout 只承载线上协议，日志写 stderr
var probeCmd = &cobra.Command{
	Use:    "probe <subtype>",
	Short:  "以子进程方式运行一个探针 (内部使用)",
	Hidden: true,
	Args:   cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st := oval.Subtype(args[0])
		if st != oval.SubtypeFileMD5 && st != oval.SubtypeFileHash {
			return fmt.Errorf("no out-of-process probe for %q", st)
		}
		algo, err := digest.ParseAlgorithm(probeDigest)
		if err != nil {
			return err
		}
		setLogLevel("")

		logger := log.Desugar().With(zap.String("probe", string(st)))
		srv := &probe.Server{
			Subtype: st,
			Init:    filehash.Lifecycle(filehash.WithAlgorithm(algo), filehash.WithLogger(logger)),
			Logger:  logger,
		}
		return srv.Serve(cmd.Context(), os.Stdin, os.Stdout)
	},
}

func init() {
	probeCmd.Flags().StringVar(&probeDigest, "digest", "md5", "摘要算法")
}
