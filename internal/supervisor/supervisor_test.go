package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/RaneyMD/cornerstone-archive/internal/flagfile"
	"github.com/RaneyMD/cornerstone-archive/internal/nas"
	"github.com/RaneyMD/cornerstone-archive/internal/store"
)

func newTestLayout(t *testing.T) *nas.Layout {
	t.Helper()
	l, err := nas.New(t.TempDir())
	if err != nil {
		t.Fatalf("nas.New: %v", err)
	}
	if err := l.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	return l
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "test.sqlite")})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestRunOncePausesWatcherAndPublishesResult exercises the simplest control
// flow: a pause_watcher flag in the inbox should be claimed, dispatched,
// leave a pause marker behind, and produce one aggregated result file.
func TestRunOncePausesWatcherAndPublishesResult(t *testing.T) {
	layout := newTestLayout(t)
	st := newTestStore(t)
	ctx := context.Background()

	flag := flagfile.Flag{
		TaskID:    "task_20260205_215837_b2c9",
		Handler:   "pause_watcher",
		WorkerID:  "Orion",
		CreatedAt: flagfile.NowUTC(),
	}
	data, err := flagfile.EncodeFlag(flag)
	if err != nil {
		t.Fatal(err)
	}
	name := flagfile.SupervisorFlagFilename("pause_watcher", "Orion", flag.TaskID)
	flagPath := filepath.Join(layout.WorkerInbox(), name)
	if err := flagfile.WriteAtomic(flagPath, data); err != nil {
		t.Fatal(err)
	}

	sup := New(Config{
		WorkerID:    "Orion",
		Layout:      layout,
		Store:       st,
		Logger:      zerolog.Nop(),
		AutoRestart: false,
		StopTimeout: 2 * time.Second,
		WatcherArgv: []string{"/bin/true"},
	})

	if err := sup.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if _, err := os.Stat(flagPath); !os.IsNotExist(err) {
		t.Errorf("control flag should be claimed/removed from inbox, stat err = %v", err)
	}
	if _, err := os.Stat(layout.PauseFlagFile("Orion")); err != nil {
		t.Errorf("pause flag should exist: %v", err)
	}

	entries, err := os.ReadDir(layout.WorkerOutbox())
	if err != nil {
		t.Fatalf("ReadDir outbox: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one aggregated result file, got %d", len(entries))
	}
	resultData, err := os.ReadFile(filepath.Join(layout.WorkerOutbox(), entries[0].Name()))
	if err != nil {
		t.Fatal(err)
	}
	result, err := flagfile.DecodeResult(resultData)
	if err != nil {
		t.Fatal(err)
	}
	if result.SupervisorID != "Orion" || result.WorkerID != "Orion" {
		t.Errorf("result.SupervisorID/WorkerID = %q/%q, want Orion/Orion", result.SupervisorID, result.WorkerID)
	}
	if len(result.Actions) != 1 {
		t.Fatalf("expected 1 recorded action, got %v", result.Actions)
	}

	row, err := st.QueryOne(ctx, `SELECT * FROM supervisors_t WHERE supervisor_id = ?`, "supervisor_Orion")
	if err != nil || row == nil {
		t.Errorf("expected a supervisor heartbeat row to exist, got row=%v err=%v", row, err)
	}
	if _, err := os.Stat(layout.SupervisorHeartbeatFile("Orion")); err != nil {
		t.Errorf("expected a supervisor heartbeat file, got err %v", err)
	}
}

// TestRunOnceNoPendingFlagsWritesNoResult verifies an idle pass (no control
// flags, watcher already running or stopped-with-no-auto-restart) produces
// a heartbeat but no result file, since there is nothing to report.
func TestRunOnceNoPendingFlagsWritesNoResult(t *testing.T) {
	layout := newTestLayout(t)
	st := newTestStore(t)
	ctx := context.Background()

	sup := New(Config{
		WorkerID:    "Vega",
		Layout:      layout,
		Store:       st,
		Logger:      zerolog.Nop(),
		AutoRestart: false,
	})

	if err := sup.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	entries, err := os.ReadDir(layout.WorkerOutbox())
	if err != nil {
		t.Fatalf("ReadDir outbox: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no result file for an idle pass, got %d entries", len(entries))
	}
}

// TestRunOnceUnregisteredHandlerIsSkipped verifies a flag naming a handler
// outside both the job and supervisor registries is left untouched rather
// than claimed, and produces no action.
func TestRunOnceUnregisteredHandlerIsSkipped(t *testing.T) {
	layout := newTestLayout(t)
	st := newTestStore(t)
	ctx := context.Background()

	flag := flagfile.Flag{
		TaskID:    "task_20260205_220000_q1w2",
		Handler:   "reticulate_splines",
		WorkerID:  "Orion",
		CreatedAt: flagfile.NowUTC(),
	}
	data, _ := flagfile.EncodeFlag(flag)
	flagPath := filepath.Join(layout.WorkerInbox(), flag.TaskID+".flag")
	if err := flagfile.WriteAtomic(flagPath, data); err != nil {
		t.Fatal(err)
	}

	sup := New(Config{WorkerID: "Orion", Layout: layout, Store: st, Logger: zerolog.Nop()})
	if err := sup.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if _, err := os.Stat(flagPath); err != nil {
		t.Errorf("unrecognized flag should remain in inbox, stat err = %v", err)
	}
}
