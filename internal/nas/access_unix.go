//go:build !windows

package nas

import "syscall"

func accessR(path string) bool { return syscall.Access(path, 4) == nil } // R_OK
func accessW(path string) bool { return syscall.Access(path, 2) == nil } // W_OK
