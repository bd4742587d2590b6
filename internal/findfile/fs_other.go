//go:build !linux

package findfile

func isLocalFS(string) bool { return true }
