//go:build !windows

package procctl

import "syscall"

// detachedAttr puts the child in its own session so it survives the
// parent's exit, matching the original's detached Popen semantics.
func detachedAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
