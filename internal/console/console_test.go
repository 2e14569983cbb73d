package console

import (
	"context"
	"os"
	"path/filepath"
	"testing"

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

func TestCreateJobFlagWritesFlagAndQueuedJob(t *testing.T) {
	layout := newTestLayout(t)
	st := newTestStore(t)
	ctx := context.Background()

	p := &FlagProducer{Layout: layout, Store: st, Logger: zerolog.Nop()}
	created, err := p.CreateJobFlag(ctx, "acquire_source", map[string]any{"source": "feed-1"}, "nightly")
	if err != nil {
		t.Fatalf("CreateJobFlag: %v", err)
	}

	if _, err := os.Stat(created.FlagPath); err != nil {
		t.Errorf("flag file missing: %v", err)
	}
	row, err := st.JobByID(ctx, created.JobID)
	if err != nil || row["state"] != "queued" {
		t.Errorf("job state = %v, want queued (err=%v)", row["state"], err)
	}
}

func TestCreateJobFlagRejectsUnknownHandler(t *testing.T) {
	layout := newTestLayout(t)
	st := newTestStore(t)
	p := &FlagProducer{Layout: layout, Store: st, Logger: zerolog.Nop()}

	if _, err := p.CreateJobFlag(context.Background(), "not_a_handler", map[string]any{"x": 1}, ""); err == nil {
		t.Error("expected an error for an unregistered handler")
	}
}

func TestCreateSupervisorFlagWritesFlagAndQueuedJob(t *testing.T) {
	layout := newTestLayout(t)
	st := newTestStore(t)
	ctx := context.Background()

	p := &FlagProducer{Layout: layout, Store: st, Logger: zerolog.Nop()}
	created, err := p.CreateSupervisorFlag(ctx, "pause_watcher", "Orion", nil, "")
	if err != nil {
		t.Fatalf("CreateSupervisorFlag: %v", err)
	}
	if _, err := os.Stat(created.FlagPath); err != nil {
		t.Errorf("flag file missing: %v", err)
	}
}

func TestProcessPendingResultsReconcilesJobResult(t *testing.T) {
	layout := newTestLayout(t)
	st := newTestStore(t)
	ctx := context.Background()

	taskID := "job_20260205_220000_abcd"
	jobID, err := st.InsertJob(ctx, taskID, "acquire_source", `{}`, "", flagfile.NowUTC())
	if err != nil {
		t.Fatal(err)
	}

	result := flagfile.Result{TaskID: taskID, Success: true, CompletedAt: flagfile.NowUTC()}
	data, err := flagfile.EncodeResult(result)
	if err != nil {
		t.Fatal(err)
	}
	resultPath := filepath.Join(layout.WorkerOutbox(), flagfile.ResultFilename(taskID, true))
	if err := flagfile.WriteAtomic(resultPath, data); err != nil {
		t.Fatal(err)
	}

	c := &ResultConsumer{Layout: layout, Store: st, Logger: zerolog.Nop()}
	processed, err := c.ProcessPendingResults(ctx)
	if err != nil {
		t.Fatalf("ProcessPendingResults: %v", err)
	}
	if len(processed) != 1 {
		t.Fatalf("expected 1 processed result, got %d", len(processed))
	}
	if len(processed[0].JobIDs) != 1 || processed[0].JobIDs[0] != jobID {
		t.Errorf("JobIDs = %v, want [%d]", processed[0].JobIDs, jobID)
	}

	row, err := st.JobByID(ctx, jobID)
	if err != nil || row["state"] != "succeeded" {
		t.Errorf("job state = %v, want succeeded (err=%v)", row["state"], err)
	}
}

func TestProcessPendingResultsReconcilesSupervisorResult(t *testing.T) {
	layout := newTestLayout(t)
	st := newTestStore(t)
	ctx := context.Background()

	targetRef := "pause_watcher:Orion"
	supJobID, err := st.InsertJob(ctx, "task_20260205_220000_wxyz", "supervisor_control", targetRef, "", flagfile.NowUTC())
	if err != nil {
		t.Fatal(err)
	}

	result := flagfile.Result{
		TaskID:       "task_20260205_220111_qqqq",
		Success:      true,
		CompletedAt:  flagfile.NowUTC(),
		SupervisorID: "Orion",
		WorkerID:     "Orion",
		Actions:      []string{"pause_watcher"},
	}
	data, err := flagfile.EncodeResult(result)
	if err != nil {
		t.Fatal(err)
	}
	resultPath := filepath.Join(layout.WorkerOutbox(), flagfile.ResultFilename(result.TaskID, true))
	if err := flagfile.WriteAtomic(resultPath, data); err != nil {
		t.Fatal(err)
	}

	c := &ResultConsumer{Layout: layout, Store: st, Logger: zerolog.Nop()}
	processed, err := c.ProcessPendingResults(ctx)
	if err != nil {
		t.Fatalf("ProcessPendingResults: %v", err)
	}
	if len(processed) != 1 {
		t.Fatalf("expected 1 processed result, got %d", len(processed))
	}
	if len(processed[0].JobIDs) != 1 || processed[0].JobIDs[0] != supJobID {
		t.Errorf("JobIDs = %v, want [%d]", processed[0].JobIDs, supJobID)
	}

	row, err := st.JobByID(ctx, supJobID)
	if err != nil || row["state"] != "succeeded" {
		t.Errorf("job state = %v, want succeeded (err=%v)", row["state"], err)
	}
}

func TestProcessPendingResultsCleanupDeletesFile(t *testing.T) {
	layout := newTestLayout(t)
	st := newTestStore(t)
	ctx := context.Background()

	taskID := "job_20260205_220222_dcba"
	if _, err := st.InsertJob(ctx, taskID, "acquire_source", `{}`, "", flagfile.NowUTC()); err != nil {
		t.Fatal(err)
	}
	result := flagfile.Result{TaskID: taskID, Success: true, CompletedAt: flagfile.NowUTC()}
	data, _ := flagfile.EncodeResult(result)
	resultPath := filepath.Join(layout.WorkerOutbox(), flagfile.ResultFilename(taskID, true))
	if err := flagfile.WriteAtomic(resultPath, data); err != nil {
		t.Fatal(err)
	}

	c := &ResultConsumer{Layout: layout, Store: st, Logger: zerolog.Nop(), Cleanup: true}
	if _, err := c.ProcessPendingResults(ctx); err != nil {
		t.Fatalf("ProcessPendingResults: %v", err)
	}
	if _, err := os.Stat(resultPath); !os.IsNotExist(err) {
		t.Errorf("expected result file to be removed after cleanup, stat err = %v", err)
	}
}
