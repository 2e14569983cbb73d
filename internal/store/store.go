// Package store is the state store adapter: a pooled, retrying
// database/sql wrapper over jobs_t, workers_t, supervisors_t, and
// audit_log_t, bootstrapped against SQLite via modernc.org/sqlite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"
)

// Config controls pool sizing and retry behavior.
type Config struct {
	Path            string
	PoolSize        int
	MaxRetries      int
	RetryDelay      time.Duration
	QueryTimeout    time.Duration
}

// Store wraps a *sql.DB with retrying Query/Exec helpers matching both
// naming conventions the original handlers used: query/get_one/execute
// (as Query/QueryOne/Exec) and the diagnostics/verify_db call sites'
// fetchOne/fetchAll (as FetchOne/FetchAll, thin aliases over the same
// pool — see DESIGN.md for why both names are kept instead of picking
// one).
type Store struct {
	db         *sql.DB
	maxRetries int
	retryDelay time.Duration
	timeout    time.Duration
}

// Open opens (creating if necessary) the SQLite-backed store, applies the
// bootstrap schema, and configures the connection pool.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store: path must not be empty")
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 5
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 10 * time.Second
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", cfg.Path, err)
	}
	db.SetMaxOpenConns(cfg.PoolSize)
	db.SetMaxIdleConns(cfg.PoolSize)

	s := &Store{
		db:         db,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		timeout:    cfg.QueryTimeout,
	}
	if err := s.bootstrap(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the raw pool for components that need it (e.g. the
// connectivity pings in verify_db and the diagnostics command).
func (s *Store) DB() *sql.DB { return s.db }

const bootstrapDDL = `
CREATE TABLE IF NOT EXISTS jobs_t (
	job_id      INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id     TEXT NOT NULL UNIQUE,
	job_type    TEXT NOT NULL,
	target_ref  TEXT NOT NULL,
	label       TEXT,
	state       TEXT NOT NULL DEFAULT 'queued',
	created_at  TEXT NOT NULL,
	finished_at TEXT,
	result_path TEXT,
	last_error  TEXT
);
CREATE INDEX IF NOT EXISTS idx_jobs_target_state ON jobs_t(job_type, target_ref, state);

CREATE TABLE IF NOT EXISTS workers_t (
	worker_id         TEXT PRIMARY KEY,
	last_heartbeat_at TEXT NOT NULL,
	status_summary    TEXT
);

CREATE TABLE IF NOT EXISTS supervisors_t (
	supervisor_id     TEXT PRIMARY KEY,
	last_heartbeat_at TEXT NOT NULL,
	status_summary    TEXT
);

CREATE TABLE IF NOT EXISTS audit_log_t (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	actor        TEXT NOT NULL,
	action       TEXT NOT NULL,
	target_type  TEXT NOT NULL,
	target_id    TEXT NOT NULL,
	details_json TEXT,
	ts           TEXT NOT NULL
);
`

func (s *Store) bootstrap() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, bootstrapDDL); err != nil {
		return fmt.Errorf("store: bootstrap schema: %w", err)
	}
	return nil
}

// retry runs op up to maxRetries+1 times with exponential backoff
// (base*2^attempt), matching the original pool's retry policy.
func (s *Store) retry(ctx context.Context, op func() error) error {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(float64(s.retryDelay) * math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isTransient(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("store: exhausted retries: %w", lastErr)
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, sql.ErrNoRows)
}

// Row is a generic result row keyed by column name, mirroring the
// dict-shaped rows the original Database class returned.
type Row map[string]any

// Query runs sql with params and returns every matching row.
func (s *Store) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	var rows []Row
	err := s.retry(ctx, func() error {
		r, err := s.queryOnce(ctx, query, args...)
		if err != nil {
			return err
		}
		rows = r
		return nil
	})
	return rows, err
}

func (s *Store) queryOnce(ctx context.Context, query string, args ...any) ([]Row, error) {
	qctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rs, err := s.db.QueryContext(qctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	cols, err := rs.Columns()
	if err != nil {
		return nil, err
	}

	var out []Row
	for rs.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rs.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	return out, rs.Err()
}

// QueryOne runs query and returns its first row, or nil if there were none.
func (s *Store) QueryOne(ctx context.Context, query string, args ...any) (Row, error) {
	rows, err := s.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// Exec runs a statement and returns rows affected.
func (s *Store) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	var affected int64
	err := s.retry(ctx, func() error {
		ectx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		res, err := s.db.ExecContext(ectx, query, args...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		affected = n
		return nil
	})
	return affected, err
}

// ExecMany runs query once per params tuple inside a single transaction.
func (s *Store) ExecMany(ctx context.Context, query string, paramSets [][]any) (int64, error) {
	var total int64
	err := s.retry(ctx, func() error {
		tctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		tx, err := s.db.BeginTx(tctx, nil)
		if err != nil {
			return err
		}
		for _, params := range paramSets {
			res, err := tx.ExecContext(tctx, query, params...)
			if err != nil {
				tx.Rollback()
				return err
			}
			n, _ := res.RowsAffected()
			total += n
		}
		return tx.Commit()
	})
	return total, err
}

// FetchAll is an alias for Query, matching the diagnostics/verify_db call
// sites' naming in the original source.
func (s *Store) FetchAll(ctx context.Context, query string, args ...any) ([]Row, error) {
	return s.Query(ctx, query, args...)
}

// FetchOne is an alias for QueryOne, matching the diagnostics/verify_db
// call sites' naming in the original source.
func (s *Store) FetchOne(ctx context.Context, query string, args ...any) (Row, error) {
	return s.QueryOne(ctx, query, args...)
}
