// Package sqlite provides an embedded jobstore backend for local and
// single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/threeoaks/csvpipe/pkg/jobstore"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS jobs (
    job_id          TEXT PRIMARY KEY,
    status          TEXT NOT NULL,
    source_location TEXT NOT NULL DEFAULT '',
    output_prefix   TEXT,
    row_count       INTEGER NOT NULL DEFAULT 0,
    error_count     INTEGER NOT NULL DEFAULT 0,
    started_at      TEXT NOT NULL,
    finished_at     TEXT,
    message         TEXT NOT NULL DEFAULT ''
);
`

// Store is a SQLite-backed jobstore.Store.
type Store struct {
	db *sql.DB
}

var _ jobstore.Store = (*Store)(nil)

// Open opens (and creates if needed) the job database at path.
// ":memory:" is supported for tests.
//
// Local files get WAL and a busy timeout for predictable behavior when the
// watcher, worker, and server share one database.
func Open(ctx context.Context, path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("job store path is required")
	}

	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create job store dir: %w", err)
		}
		dsn = "file:" + filepath.Clean(path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping job store: %w", err)
	}

	// Keep a single connection; the in-memory DSN would otherwise get a
	// fresh empty database per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if path != ":memory:" {
		var journalMode string
		if err := db.QueryRowContext(ctx, "PRAGMA journal_mode=WAL").Scan(&journalMode); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
		var busyTimeout int
		if err := db.QueryRowContext(ctx, "PRAGMA busy_timeout=5000").Scan(&busyTimeout); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set busy timeout: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Create writes the full initial record, overwriting any prior record for
// the same job id.
func (s *Store) Create(ctx context.Context, job *jobstore.Job) error {
	if job == nil || strings.TrimSpace(job.JobID) == "" {
		return errors.New("job id is required")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO jobs
         (job_id, status, source_location, output_prefix, row_count, error_count, started_at, finished_at, message)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.JobID,
		string(job.Status),
		job.SourceLocation,
		nullString(job.OutputPrefix),
		job.RowCount,
		job.ErrorCount,
		formatTime(job.StartedAt),
		nullTime(job.FinishedAt),
		job.Message,
	)
	if err != nil {
		return fmt.Errorf("create job %s: %w", job.JobID, err)
	}
	return nil
}

// Update applies only the fields named in upd.
func (s *Store) Update(ctx context.Context, jobID string, upd jobstore.Update) error {
	if strings.TrimSpace(jobID) == "" {
		return errors.New("job id is required")
	}
	if upd.Empty() {
		return nil
	}

	var sets []string
	var args []any
	add := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if upd.Status != nil {
		add("status", string(*upd.Status))
	}
	if upd.Message != nil {
		add("message", *upd.Message)
	}
	if upd.RowCount != nil {
		add("row_count", *upd.RowCount)
	}
	if upd.ErrorCount != nil {
		add("error_count", *upd.ErrorCount)
	}
	if upd.OutputPrefix != nil {
		add("output_prefix", *upd.OutputPrefix)
	}
	if upd.FinishedAt != nil {
		add("finished_at", formatTime(*upd.FinishedAt))
	}

	query := "UPDATE jobs SET " + strings.Join(sets, ", ") + " WHERE job_id = ?"
	args = append(args, jobID)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job %s: %w", jobID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job %s: %w", jobID, err)
	}
	if affected == 0 {
		return jobstore.ErrNotFound
	}
	return nil
}

// Get returns the full record, or jobstore.ErrNotFound.
func (s *Store) Get(ctx context.Context, jobID string) (*jobstore.Job, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, errors.New("job id is required")
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT job_id, status, source_location, output_prefix, row_count, error_count, started_at, finished_at, message
         FROM jobs WHERE job_id = ?`, jobID)

	var (
		job          jobstore.Job
		status       string
		outputPrefix sql.NullString
		startedAt    string
		finishedAt   sql.NullString
	)
	err := row.Scan(&job.JobID, &status, &job.SourceLocation, &outputPrefix,
		&job.RowCount, &job.ErrorCount, &startedAt, &finishedAt, &job.Message)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, jobstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}

	job.Status = jobstore.Status(status)
	if outputPrefix.Valid {
		job.OutputPrefix = &outputPrefix.String
	}
	if job.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	if finishedAt.Valid {
		t, err := parseTime(finishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("get job %s: %w", jobID, err)
		}
		job.FinishedAt = &t
	}

	return &job, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}
