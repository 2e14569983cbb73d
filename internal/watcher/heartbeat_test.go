package watcher

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/RaneyMD/cornerstone-archive/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "test.sqlite")})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBeatWritesFileAndRow(t *testing.T) {
	layout := newTestLayout(t)
	st := newTestStore(t)
	ctx := context.Background()

	if err := beat(ctx, layout, st, "Orion", 300); err != nil {
		t.Fatalf("beat: %v", err)
	}

	row, err := st.WorkerHeartbeat(ctx, "Orion")
	if err != nil || row == nil {
		t.Fatalf("WorkerHeartbeat: row=%v err=%v", row, err)
	}

	health := ReadHeartbeat(layout, "Orion", 300*time.Second, time.Now().UTC())
	if health != HealthRunning {
		t.Errorf("health = %s, want running", health)
	}
}

func TestReadHeartbeatStaleAndStopped(t *testing.T) {
	layout := newTestLayout(t)

	if h := ReadHeartbeat(layout, "Ghost", 300*time.Second, time.Now().UTC()); h != HealthStopped {
		t.Errorf("missing heartbeat file = %s, want stopped", h)
	}

	st := newTestStore(t)
	ctx := context.Background()
	if err := beat(ctx, layout, st, "Orion", 300); err != nil {
		t.Fatalf("beat: %v", err)
	}

	// A "now" far in the future makes the same heartbeat file stale.
	future := time.Now().UTC().Add(time.Hour)
	if h := ReadHeartbeat(layout, "Orion", 300*time.Second, future); h != HealthStale {
		t.Errorf("health at +1h = %s, want stale", h)
	}
}
