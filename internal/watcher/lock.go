// Package watcher implements the watcher process: single-instance lock,
// 1-second event loop with independent scan/heartbeat gates, and the
// scan-claim-execute-publish cycle over a worker's inbox.
package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"

	"github.com/RaneyMD/cornerstone-archive/internal/nas"
)

// Owner is the metadata recorded inside a held lock directory.
type Owner struct {
	WorkerID       string `json:"worker_id"`
	PID            int    `json:"pid"`
	Hostname       string `json:"hostname"`
	ExecutablePath string `json:"executable_path"`
	UTCLockedAt    string `json:"utc_locked_at"`
}

// Lock is a held single-instance lock directory. Release is idempotent.
type Lock struct {
	dir      string
	released bool
}

// ErrAlreadyLocked is returned when the lock directory already exists.
var ErrAlreadyLocked = fmt.Errorf("watcher: lock already held")

// AcquireLock creates the lock directory atomically (os.Mkdir fails if it
// already exists) and writes owner.json inside. The caller must Release it.
func AcquireLock(layout *nas.Layout, workerID string) (*Lock, error) {
	dir := layout.LockDir(workerID)
	if err := os.Mkdir(dir, 0750); err != nil {
		if os.IsExist(err) {
			return nil, ErrAlreadyLocked
		}
		return nil, fmt.Errorf("watcher: create lock directory: %w", err)
	}

	hostname, _ := os.Hostname()
	exe, _ := os.Executable()
	owner := Owner{
		WorkerID:       workerID,
		PID:            os.Getpid(),
		Hostname:       hostname,
		ExecutablePath: exe,
		UTCLockedAt:    time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
	}
	data, err := json.Marshal(owner)
	if err != nil {
		os.Remove(dir)
		return nil, fmt.Errorf("watcher: marshal owner: %w", err)
	}
	ownerPath := filepath.Join(dir, "owner.json")
	if err := os.WriteFile(ownerPath, data, 0600); err != nil {
		os.Remove(dir)
		return nil, fmt.Errorf("watcher: write owner.json: %w", err)
	}

	return &Lock{dir: dir}, nil
}

// Release removes owner.json then the lock directory. Safe to call more
// than once; later calls are no-ops.
func (l *Lock) Release() error {
	if l.released {
		return nil
	}
	l.released = true
	ownerPath := filepath.Join(l.dir, "owner.json")
	if err := os.Remove(ownerPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("watcher: remove owner.json: %w", err)
	}
	if err := os.Remove(l.dir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("watcher: remove lock directory: %w", err)
	}
	return nil
}
