package store

import (
	"context"
)

// JobState is the forward-only lifecycle state of a job row.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
)

// InsertJob inserts a new job row in the queued state and returns its
// surrogate job_id. Unlike Exec, this bypasses the retry wrapper and talks
// to the pool directly so it can read back sql.Result.LastInsertId —
// retrying an insert-then-read-lastrowid pair across attempts could
// silently pick up the wrong row's id.
func (s *Store) InsertJob(ctx context.Context, taskID, jobType, targetRef, label, createdAt string) (int64, error) {
	ectx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	res, err := s.db.ExecContext(ectx,
		`INSERT INTO jobs_t (task_id, job_type, target_ref, label, state, created_at)
		 VALUES (?, ?, ?, ?, 'queued', ?)`,
		taskID, jobType, targetRef, label, createdAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// JobIDByTaskID maps a task id to its surrogate job_id, or 0 if unknown.
func (s *Store) JobIDByTaskID(ctx context.Context, taskID string) (int64, error) {
	row, err := s.QueryOne(ctx, `SELECT job_id FROM jobs_t WHERE task_id = ?`, taskID)
	if err != nil || row == nil {
		return 0, err
	}
	return toInt64(row["job_id"]), nil
}

// FindOpenSupervisorJob returns the most recently created queued/running
// supervisor_control job for the given target_ref, or 0 if none.
func (s *Store) FindOpenSupervisorJob(ctx context.Context, targetRef string) (int64, error) {
	row, err := s.QueryOne(ctx,
		`SELECT job_id FROM jobs_t
		 WHERE job_type = 'supervisor_control' AND target_ref = ?
		 AND state IN ('queued', 'running')
		 ORDER BY created_at DESC LIMIT 1`,
		targetRef,
	)
	if err != nil || row == nil {
		return 0, err
	}
	return toInt64(row["job_id"]), nil
}

// UpdateJobResult transitions a job to succeeded or failed, recording the
// result path and any error text.
func (s *Store) UpdateJobResult(ctx context.Context, jobID int64, success bool, finishedAt, resultPath, lastError string) error {
	state := JobSucceeded
	if !success {
		state = JobFailed
	}
	_, err := s.Exec(ctx,
		`UPDATE jobs_t SET state = ?, finished_at = ?, result_path = ?, last_error = ? WHERE job_id = ?`,
		string(state), finishedAt, resultPath, lastError, jobID,
	)
	return err
}

// MarkJobRunning transitions a queued job to running.
func (s *Store) MarkJobRunning(ctx context.Context, jobID int64) error {
	_, err := s.Exec(ctx, `UPDATE jobs_t SET state = 'running' WHERE job_id = ? AND state = 'queued'`, jobID)
	return err
}

// JobByID fetches a job row, or nil if not found.
func (s *Store) JobByID(ctx context.Context, jobID int64) (Row, error) {
	return s.QueryOne(ctx, `SELECT * FROM jobs_t WHERE job_id = ?`, jobID)
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
