package store

import (
	"context"

	json "github.com/goccy/go-json"
)

// InsertAudit appends one row to audit_log_t. details is marshaled to JSON;
// a nil details argument records an empty object, matching the original's
// unconditional json.dumps(details) call site.
func (s *Store) InsertAudit(ctx context.Context, actor, action, targetType, targetID string, details map[string]any, ts string) error {
	if details == nil {
		details = map[string]any{}
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return err
	}
	_, err = s.Exec(ctx,
		`INSERT INTO audit_log_t (actor, action, target_type, target_id, details_json, ts) VALUES (?, ?, ?, ?, ?, ?)`,
		actor, action, targetType, targetID, string(detailsJSON), ts,
	)
	return err
}

// RecentAudit returns the most recent n audit rows, newest first.
func (s *Store) RecentAudit(ctx context.Context, n int) ([]Row, error) {
	return s.Query(ctx, `SELECT * FROM audit_log_t ORDER BY id DESC LIMIT ?`, n)
}
