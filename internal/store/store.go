// Package store provides a SQLite-backed persistence layer for completed
// pipeline runs. Each run's question, answer, route, retry count, and
// terminal state are recorded so operators can audit why the pipeline gave
// up or looped, across process restarts.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Run is one persisted pipeline run.
type Run struct {
	// ID is the run's UUID, assigned by the pipeline.
	ID string
	// Question is the user's original question.
	Question string
	// Answer is the final answer text (the fallback answer for exhausted runs).
	Answer string
	// Route is the retrieval route the run used.
	Route string
	// Retries is the retry budget consumed.
	Retries int
	// State is the terminal state reached ("done" or "exhausted").
	State string
	// Duration is the wall-clock run time.
	Duration time.Duration
	// CreatedAt is when the run was persisted.
	CreatedAt time.Time
}

// RunStore persists and retrieves completed pipeline runs. Implementations
// must be safe for concurrent use.
type RunStore interface {
	// Record persists a single completed run.
	Record(ctx context.Context, run Run) error
	// Recent returns the most recent n runs, newest-first. If fewer than n
	// runs exist, all are returned.
	Recent(ctx context.Context, n int) ([]Run, error)
	// Get returns the run with the given ID, or sql.ErrNoRows if absent.
	Get(ctx context.Context, id string) (Run, error)
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a RunStore backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the run history database.
// It resolves to ~/.crag/runs.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".crag")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "runs.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS runs (
    id           TEXT    PRIMARY KEY,
    question     TEXT    NOT NULL,
    answer       TEXT    NOT NULL,
    route        TEXT    NOT NULL,
    retry_count  INTEGER NOT NULL,
    state        TEXT    NOT NULL CHECK(state IN ('done','exhausted')),
    duration_ms  INTEGER NOT NULL,
    created_at   INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_runs_created
    ON runs (created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Record persists a single completed run.
func (s *SQLiteStore) Record(ctx context.Context, run Run) error {
	const q = `INSERT INTO runs (id, question, answer, route, retry_count, state, duration_ms, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		run.ID, run.Question, run.Answer, run.Route,
		run.Retries, run.State, run.Duration.Milliseconds(), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("store: record: %w", err)
	}
	return nil
}

// Recent returns the most recent n runs, newest-first.
func (s *SQLiteStore) Recent(ctx context.Context, n int) ([]Run, error) {
	const q = `
SELECT id, question, answer, route, retry_count, state, duration_ms, created_at
FROM   runs
ORDER  BY created_at DESC, rowid DESC
LIMIT  ?`

	rows, err := s.db.QueryContext(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("store: recent scan: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent rows: %w", err)
	}
	return runs, nil
}

// Get returns the run with the given ID, or sql.ErrNoRows if absent.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Run, error) {
	const q = `
SELECT id, question, answer, route, retry_count, state, duration_ms, created_at
FROM   runs
WHERE  id = ?`

	run, err := scanRun(s.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("store: get %s: %w", id, err)
	}
	return run, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var run Run
	var durationMS, ts int64
	if err := sc.Scan(&run.ID, &run.Question, &run.Answer, &run.Route,
		&run.Retries, &run.State, &durationMS, &ts); err != nil {
		return Run{}, err
	}
	run.Duration = time.Duration(durationMS) * time.Millisecond
	run.CreatedAt = time.Unix(ts, 0)
	return run, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
