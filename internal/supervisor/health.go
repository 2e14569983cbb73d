package supervisor

import (
	"time"

	"github.com/RaneyMD/cornerstone-archive/internal/nas"
	"github.com/RaneyMD/cornerstone-archive/internal/procctl"
	"github.com/RaneyMD/cornerstone-archive/internal/watcher"
)

// WatcherState is the tri-state health result from §4.7.1 step 1.
type WatcherState string

const (
	StateRunning WatcherState = "running"
	StateStale   WatcherState = "stale"
	StateStopped WatcherState = "stopped"
)

// checkWatcherHealth combines a process-existence probe with heartbeat
// freshness: running requires both a live process and a fresh, "running"
// heartbeat; a live process with a stale or absent heartbeat is stale; no
// live process is stopped regardless of heartbeat content.
func checkWatcherHealth(layout *nas.Layout, workerID string, maxAge time.Duration) (WatcherState, int, bool) {
	pid, alive, _ := procctl.Find(procctl.WorkerMatcher(workerID))
	health := watcher.ReadHeartbeat(layout, workerID, maxAge, time.Now().UTC())

	switch {
	case alive && health == watcher.HealthRunning:
		return StateRunning, pid, alive
	case alive:
		return StateStale, pid, alive
	default:
		return StateStopped, pid, alive
	}
}
