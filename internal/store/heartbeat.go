package store

import "context"

// UpsertWorkerHeartbeat inserts or updates a workers_t row, matching
// the original's INSERT ... ON DUPLICATE KEY UPDATE semantics via
// SQLite's INSERT ... ON CONFLICT DO UPDATE.
func (s *Store) UpsertWorkerHeartbeat(ctx context.Context, workerID, nowUTC, statusSummary string) error {
	_, err := s.Exec(ctx,
		`INSERT INTO workers_t (worker_id, last_heartbeat_at, status_summary)
		 VALUES (?, ?, ?)
		 ON CONFLICT(worker_id) DO UPDATE SET
		   last_heartbeat_at = excluded.last_heartbeat_at,
		   status_summary = excluded.status_summary`,
		workerID, nowUTC, statusSummary,
	)
	return err
}

// UpsertSupervisorHeartbeat inserts or updates a supervisors_t row, keyed
// by "supervisor_{worker_id}" matching the original heartbeat writer's
// convention of prefixing the supervisor's identity in the shared table.
func (s *Store) UpsertSupervisorHeartbeat(ctx context.Context, workerID, nowUTC, statusSummary string) error {
	_, err := s.Exec(ctx,
		`INSERT INTO supervisors_t (supervisor_id, last_heartbeat_at, status_summary)
		 VALUES (?, ?, ?)
		 ON CONFLICT(supervisor_id) DO UPDATE SET
		   last_heartbeat_at = excluded.last_heartbeat_at,
		   status_summary = excluded.status_summary`,
		"supervisor_"+workerID, nowUTC, statusSummary,
	)
	return err
}

// WorkerHeartbeat fetches a workers_t row, or nil if unknown.
func (s *Store) WorkerHeartbeat(ctx context.Context, workerID string) (Row, error) {
	return s.QueryOne(ctx, `SELECT * FROM workers_t WHERE worker_id = ?`, workerID)
}
