// Package procctl wraps process enumeration, signaling, and spawning in a
// few package-level functions: Find, SendSignal, SpawnDetached and
// RunBounded, plus IsAlive and StopGracefully. Callers invoke them
// directly; there is no interface through which a test can substitute a
// fake process table.
package procctl

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Matcher reports whether a process's command-line tokens identify the
// watcher it is looking for — requiring both a code-identity token
// (e.g. "cornerstone" or "watcher") and the worker id to be present,
// mirroring check_watcher_process's cmdline substring match.
type Matcher func(cmdline []string) bool

// WorkerMatcher builds a Matcher requiring both a watcher-identity token
// and the given worker id to appear among the process's command-line
// arguments.
func WorkerMatcher(workerID string) Matcher {
	return func(cmdline []string) bool {
		joined := strings.Join(cmdline, " ")
		hasWatcherToken := strings.Contains(joined, "watcher")
		hasWorkerID := strings.Contains(joined, workerID)
		return hasWatcherToken && hasWorkerID
	}
}

// Find enumerates processes via /proc (Linux) and returns the pid of the
// first one matching m, or ok=false if none matched.
func Find(m Matcher) (pid int, ok bool, err error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return 0, false, fmt.Errorf("procctl: read /proc: %w", err)
	}
	for _, e := range entries {
		candidate, convErr := strconv.Atoi(e.Name())
		if convErr != nil {
			continue
		}
		cmdline, readErr := readCmdline(candidate)
		if readErr != nil {
			continue
		}
		if m(cmdline) {
			return candidate, true, nil
		}
	}
	return 0, false, nil
}

func readCmdline(pid int) ([]string, error) {
	data, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "cmdline"))
	if err != nil {
		return nil, err
	}
	parts := bytes.Split(bytes.TrimRight(data, "\x00"), []byte{0})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if len(p) > 0 {
			out = append(out, string(p))
		}
	}
	return out, nil
}

// IsAlive reports whether pid refers to a live process, using signal 0 —
// the same liveness probe the teacher's daemon lock code uses.
func IsAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// SendSignal delivers sig to pid.
func SendSignal(pid int, sig os.Signal) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("procctl: find process %d: %w", pid, err)
	}
	return proc.Signal(sig)
}

// StopGracefully sends SIGTERM, polls every 500ms up to timeout, then
// sends SIGKILL and polls for up to 1s more. Returns true if the process
// is confirmed gone (including if it was never found at all).
func StopGracefully(pid int, timeout time.Duration) bool {
	if pid == 0 || !IsAlive(pid) {
		return true
	}
	SendSignal(pid, syscall.SIGTERM)

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !IsAlive(pid) {
			return true
		}
		time.Sleep(500 * time.Millisecond)
	}

	SendSignal(pid, syscall.SIGKILL)
	killDeadline := time.Now().Add(time.Second)
	for time.Now().Before(killDeadline) {
		if !IsAlive(pid) {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return !IsAlive(pid)
}

// SpawnDetached starts argv with stdout/stderr redirected to /dev/null and
// returns immediately without waiting — the supervisor's watcher-restart
// primitive.
func SpawnDetached(argv []string, dir string) error {
	if len(argv) == 0 {
		return fmt.Errorf("procctl: empty argv")
	}
	devNull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("procctl: open %s: %w", os.DevNull, err)
	}
	defer devNull.Close()

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stdout = devNull
	cmd.Stderr = devNull
	cmd.Stdin = nil
	cmd.SysProcAttr = detachedAttr()

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("procctl: spawn %v: %w", argv, err)
	}
	go cmd.Wait() // reap; caller does not wait on the child
	return nil
}

// BoundedResult is the outcome of a timeout-wrapped subprocess run.
type BoundedResult struct {
	Code   int
	Stdout string
	Stderr string
}

// RunBounded runs argv with a capped duration. A timeout produces a
// synthetic nonzero code and a descriptive stderr rather than an error,
// matching the original's TimeoutExpired handling.
func RunBounded(ctx context.Context, argv []string, dir string, timeout time.Duration) (BoundedResult, error) {
	if len(argv) == 0 {
		return BoundedResult{}, fmt.Errorf("procctl: empty argv")
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return BoundedResult{
			Code:   -1,
			Stdout: stdout.String(),
			Stderr: fmt.Sprintf("command timed out after %s", timeout),
		}, nil
	}
	code := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		} else {
			return BoundedResult{}, fmt.Errorf("procctl: run %v: %w", argv, err)
		}
	}
	return BoundedResult{Code: code, Stdout: stdout.String(), Stderr: stderr.String()}, nil
}
