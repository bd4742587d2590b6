//go:build linux

package findfile

import "golang.org/x/sys/unix"

// 远程文件系统的 statfs magic
var remoteFS = map[int64]bool{
	0x6969:     true, // nfs
	0x517b:     true, // smb
	0xff534d42: true, // cifs
	0xfe534d42: true, // smb2
	0x564c:     true, // ncp
	0x73757245: true, // coda
	0x5346414f: true, // afs
}

func isLocalFS(path string) bool {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return true
	}
	return !remoteFS[int64(st.Type)]
}
