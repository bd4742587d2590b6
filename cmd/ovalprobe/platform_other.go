//go:build !linux

package main

func checkPrivileges() {
}
