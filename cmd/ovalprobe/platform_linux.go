//go:build linux

package main

import (
	"golang.org/x/sys/unix"
)

// checkPrivileges 非 root 运行时文件摘要可能出现 permission denied
func checkPrivileges() {
	if unix.Geteuid() != 0 {
		log.Warn("当前不是 root 用户，部分文件可能无法读取，对应条目会标记为 error")
	}
}
