package store

import (
	"context"
	"path/filepath"
	"testing"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.sqlite")
	s, err := Open(Config{Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestJobLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	jobID, err := s.InsertJob(ctx, "job_20260205_215837_a7k2", "acquire_source", `{"x":1}`, "", "2026-02-05T21:58:37.000Z")
	if err != nil {
		t.Fatalf("InsertJob: %v", err)
	}
	if jobID == 0 {
		t.Fatal("expected non-zero job id")
	}

	row, err := s.JobByID(ctx, jobID)
	if err != nil || row == nil {
		t.Fatalf("JobByID: row=%v err=%v", row, err)
	}
	if row["state"] != "queued" {
		t.Errorf("state = %v, want queued", row["state"])
	}

	if err := s.MarkJobRunning(ctx, jobID); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateJobResult(ctx, jobID, true, "2026-02-05T21:59:00.000Z", "/outbox/x.result.json", ""); err != nil {
		t.Fatal(err)
	}

	row, _ = s.JobByID(ctx, jobID)
	if row["state"] != "succeeded" {
		t.Errorf("state = %v, want succeeded", row["state"])
	}

	gotID, err := s.JobIDByTaskID(ctx, "job_20260205_215837_a7k2")
	if err != nil || gotID != jobID {
		t.Errorf("JobIDByTaskID = %d, %v; want %d", gotID, err, jobID)
	}
}

func TestWorkerHeartbeatUpsert(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	if err := s.UpsertWorkerHeartbeat(ctx, "Orion", "2026-02-05T21:58:37Z", "1 pending"); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertWorkerHeartbeat(ctx, "Orion", "2026-02-05T21:59:07Z", "0 pending"); err != nil {
		t.Fatal(err)
	}

	row, err := s.WorkerHeartbeat(ctx, "Orion")
	if err != nil || row == nil {
		t.Fatalf("WorkerHeartbeat: %v %v", row, err)
	}
	if row["status_summary"] != "0 pending" {
		t.Errorf("status_summary = %v, want '0 pending' (upsert should overwrite)", row["status_summary"])
	}

	rows, err := s.Query(ctx, `SELECT * FROM workers_t`)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Errorf("expected exactly one worker row after two heartbeats, got %d", len(rows))
	}
}

func TestAuditAppendAndRecent(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	for i := 0; i < 3; i++ {
		if err := s.InsertAudit(ctx, "console", "CREATE_FLAG", "job", "1", map[string]any{"n": i}, "2026-02-05T21:58:37Z"); err != nil {
			t.Fatal(err)
		}
	}
	rows, err := s.RecentAudit(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Errorf("expected 3 audit rows, got %d", len(rows))
	}
}

func TestFetchAliasesMatchQueryMethods(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	s.UpsertWorkerHeartbeat(ctx, "Orion", "2026-02-05T21:58:37Z", "ok")

	viaFetch, err := s.FetchOne(ctx, `SELECT * FROM workers_t WHERE worker_id = ?`, "Orion")
	if err != nil {
		t.Fatal(err)
	}
	viaQuery, err := s.QueryOne(ctx, `SELECT * FROM workers_t WHERE worker_id = ?`, "Orion")
	if err != nil {
		t.Fatal(err)
	}
	if viaFetch["status_summary"] != viaQuery["status_summary"] {
		t.Errorf("FetchOne and QueryOne diverged")
	}
}
