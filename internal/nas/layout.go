// Package nas provides the canonical directory layout on shared storage
// and the accessibility checks every component performs against it.
package nas

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
)

const dirPerm = 0750

// Error reports a NAS accessibility or layout problem.
type Error struct {
	Msg string
}

func (e *Error) Error() string { return e.Msg }

func errf(format string, args ...any) error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}

// Layout resolves paths under a configured root following the six
// canonical top-level directories.
type Layout struct {
	Root string
}

// New validates root exists and is readable, returning a Layout over it.
func New(root string) (*Layout, error) {
	if root == "" {
		return nil, errf("nas root must not be empty")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, errf("nas root path does not exist: %s", root)
	}
	if !info.IsDir() {
		return nil, errf("nas root path is not a directory: %s", root)
	}
	if !isAccessible(root) {
		return nil, errf("nas root path not readable: %s", root)
	}
	return &Layout{Root: root}, nil
}

func (l *Layout) StatePath() string     { return filepath.Join(l.Root, "00_STATE") }
func (l *Layout) RawPath() string       { return filepath.Join(l.Root, "01_RAW") }
func (l *Layout) WorkPath() string      { return filepath.Join(l.Root, "02_WORK") }
func (l *Layout) ReferencePath() string { return filepath.Join(l.Root, "03_REFERENCE") }
func (l *Layout) PublishPath() string   { return filepath.Join(l.Root, "04_PUBLISH") }
func (l *Layout) LogsPath() string      { return filepath.Join(l.Root, "05_LOGS") }

// WorkerInbox is 05_LOGS/Worker_Inbox — job and control flags land here.
func (l *Layout) WorkerInbox() string { return filepath.Join(l.LogsPath(), "Worker_Inbox") }

// WorkerOutbox is 05_LOGS/Worker_Outbox — results are published here.
func (l *Layout) WorkerOutbox() string { return filepath.Join(l.LogsPath(), "Worker_Outbox") }

// Processing is 05_LOGS/processing — claimed flags live here during execution.
func (l *Layout) Processing() string { return filepath.Join(l.LogsPath(), "processing") }

// Diagnostics is 05_LOGS/diagnostics — diagnostics reports land here.
func (l *Layout) Diagnostics() string { return filepath.Join(l.LogsPath(), "diagnostics") }

// Locks is 00_STATE/locks — single-instance watcher lock directories.
func (l *Layout) Locks() string { return filepath.Join(l.StatePath(), "locks") }

// LockDir is the lock directory path for a given worker id.
func (l *Layout) LockDir(workerID string) string {
	return filepath.Join(l.Locks(), fmt.Sprintf("watcher_%s.lock", workerID))
}

// WatcherHeartbeatFile is the heartbeat file path for a given worker id.
func (l *Layout) WatcherHeartbeatFile(workerID string) string {
	return filepath.Join(l.StatePath(), fmt.Sprintf("watcher_heartbeat_%s.json", workerID))
}

// SupervisorHeartbeatFile is the heartbeat file path for a given worker id.
func (l *Layout) SupervisorHeartbeatFile(workerID string) string {
	return filepath.Join(l.StatePath(), fmt.Sprintf("supervisor_heartbeat_%s.json", workerID))
}

// PauseFlagFile is the pause-flag path for a given worker id.
func (l *Layout) PauseFlagFile(workerID string) string {
	return filepath.Join(l.StatePath(), fmt.Sprintf("supervisor_pause_%s.flag", workerID))
}

// ContainerRawPath is 01_RAW/containers/{containerID}.
func (l *Layout) ContainerRawPath(containerID int) string {
	return filepath.Join(l.RawPath(), "containers", fmt.Sprintf("%d", containerID))
}

// ContainerWorkPath is 02_WORK/containers/{containerID}.
func (l *Layout) ContainerWorkPath(containerID int) string {
	return filepath.Join(l.WorkPath(), "containers", fmt.Sprintf("%d", containerID))
}

// EnsureDirs creates the full canonical tree. Idempotent.
func (l *Layout) EnsureDirs() error {
	dirs := []string{
		l.StatePath(), l.RawPath(), l.WorkPath(), l.ReferencePath(),
		l.PublishPath(), l.LogsPath(),
		l.WorkerInbox(), l.WorkerOutbox(), l.Processing(), l.Diagnostics(),
		l.Locks(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return fmt.Errorf("nas: create directory %s: %w", dir, err)
		}
	}
	return nil
}

// VerifyAllPaths reports accessibility of the six top-level directories,
// keyed by their canonical names.
func (l *Layout) VerifyAllPaths() map[string]bool {
	paths := map[string]string{
		"00_STATE":     l.StatePath(),
		"01_RAW":       l.RawPath(),
		"02_WORK":      l.WorkPath(),
		"03_REFERENCE": l.ReferencePath(),
		"04_PUBLISH":   l.PublishPath(),
		"05_LOGS":      l.LogsPath(),
	}
	results := make(map[string]bool, len(paths))
	for name, path := range paths {
		results[name] = isAccessible(path)
	}
	return results
}

// CreateWorkDir creates (and verifies writability of) a container's work
// directory, including parents.
func (l *Layout) CreateWorkDir(containerID int) (string, error) {
	path := l.ContainerWorkPath(containerID)
	if err := os.MkdirAll(path, dirPerm); err != nil {
		return "", errf("failed to create work directory %s: %v", path, err)
	}
	if !isWritable(path) {
		return "", errf("created directory is not writable: %s", path)
	}
	return path, nil
}

func isAccessible(path string) bool {
	if _, err := os.Stat(path); err != nil {
		return false
	}
	return accessR(path)
}

func isWritable(path string) bool {
	if _, err := os.Stat(path); err != nil {
		return false
	}
	return accessW(path)
}

// MoveFile moves src to dst via rename, falling back to copy+remove on
// EXDEV (cross-device, e.g. a bind-mounted shared volume). Used for
// archival/publish moves — never for the claim step, whose fail-if-exists
// semantics must not be emulated across devices.
func MoveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	var errno syscall.Errno
	if !errors.As(err, &errno) || errno != syscall.EXDEV {
		return err
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}
