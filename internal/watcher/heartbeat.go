package watcher

import (
	"context"
	"fmt"
	"os"
	"time"

	json "github.com/goccy/go-json"

	"github.com/RaneyMD/cornerstone-archive/internal/flagfile"
	"github.com/RaneyMD/cornerstone-archive/internal/nas"
	"github.com/RaneyMD/cornerstone-archive/internal/store"
)

// heartbeatFile is the payload written to 00_STATE/watcher_heartbeat_{id}.json.
type heartbeatFile struct {
	WatcherID   string  `json:"watcher_id"`
	PID         int     `json:"pid"`
	Hostname    string  `json:"hostname"`
	Status      string  `json:"status"`
	UTC         string  `json:"utc"`
	PollSeconds float64 `json:"poll_seconds"`
}

// beat upserts the worker row and rewrites the heartbeat file. statusSummary
// is a free-form string; the worker row's copy includes the inbox depth, the
// file's does not (it mirrors the original watcher_heartbeat payload shape).
func beat(ctx context.Context, layout *nas.Layout, st *store.Store, workerID string, pollSeconds float64) error {
	now := flagfile.NowUTC()

	inboxCount, err := countInbox(layout)
	if err != nil {
		inboxCount = -1
	}
	statusSummary := fmt.Sprintf("running, %d task(s) pending", inboxCount)

	if err := st.UpsertWorkerHeartbeat(ctx, workerID, now, statusSummary); err != nil {
		return fmt.Errorf("watcher: upsert worker heartbeat: %w", err)
	}

	hostname, _ := os.Hostname()
	payload := heartbeatFile{
		WatcherID:   workerID,
		PID:         os.Getpid(),
		Hostname:    hostname,
		Status:      "running",
		UTC:         now,
		PollSeconds: pollSeconds,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("watcher: marshal heartbeat file: %w", err)
	}
	return flagfile.WriteAtomic(layout.WatcherHeartbeatFile(workerID), data)
}

func countInbox(layout *nas.Layout) (int, error) {
	entries, err := os.ReadDir(layout.WorkerInbox())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() {
			n++
		}
	}
	return n, nil
}

// Health describes a watcher's observed state, derived from the heartbeat
// file per §4.7.5: healthy iff it exists, status=="running", and its
// timestamp is within maxAge.
type Health string

const (
	HealthRunning Health = "running"
	HealthStale   Health = "stale"
	HealthStopped Health = "stopped"
)

// ReadHeartbeat reports the watcher's health state by reading its heartbeat
// file, or HealthStopped if the file does not exist or is unreadable.
func ReadHeartbeat(layout *nas.Layout, workerID string, maxAge time.Duration, now time.Time) Health {
	data, err := os.ReadFile(layout.WatcherHeartbeatFile(workerID))
	if err != nil {
		return HealthStopped
	}
	var payload heartbeatFile
	if err := json.Unmarshal(data, &payload); err != nil {
		return HealthStopped
	}
	if payload.Status != "running" {
		return HealthStale
	}
	ts, err := time.Parse("2006-01-02T15:04:05.000Z", payload.UTC)
	if err != nil {
		return HealthStale
	}
	if now.Sub(ts) > maxAge {
		return HealthStale
	}
	return HealthRunning
}
