// Package sysinfo 采集系统特征头部所需的主机信息
package sysinfo

import (
	"context"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/net"
)

type Interface struct {
	Name  string   `json:"name"`
	MAC   string   `json:"mac,omitempty"`
	Addrs []string `json:"addrs,omitempty"`
}

type Info struct {
	OSName       string      `json:"os_name"`
	OSVersion    string      `json:"os_version"`
	Kernel       string      `json:"kernel"`
	Architecture string      `json:"architecture"`
	Hostname     string      `json:"primary_host_name"`
	Interfaces   []Interface `json:"interfaces,omitempty"`
}

func Collect(ctx context.Context) (*Info, error) {
	hi, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("collect host info: %w", err)
	}

	arch := hi.KernelArch
	if arch == "" {
		arch = runtime.GOARCH
	}
	info := &Info{
		OSName:       hi.Platform,
		OSVersion:    hi.PlatformVersion,
		Kernel:       hi.KernelVersion,
		Architecture: arch,
		Hostname:     hi.Hostname,
	}

	// 网卡信息拿不到时不影响其他字段
	ifaces, err := net.InterfacesWithContext(ctx)
	if err == nil {
		for _, ifc := range ifaces {
			i := Interface{Name: ifc.Name, MAC: ifc.HardwareAddr}
			for _, a := range ifc.Addrs {
				i.Addrs = append(i.Addrs, a.Addr)
			}
			info.Interfaces = append(info.Interfaces, i)
		}
	}
	return info, nil
}
