// Package store persists one summary row per pipeline run in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Qnatz/Qrews-sub000/internal/logging"

	_ "modernc.org/sqlite"
)

// RunSummary is one row of the runs table, keyed by project name.
type RunSummary struct {
	Name        string
	Objective   string
	ProjectType string
	StartedAt   time.Time
	EndedAt     time.Time
	Status      string
	Backend     string
	RunID       string
	HaltError   string
	Warnings    int
}

// SummaryStore records run summaries.
type SummaryStore struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// OpenSummaryStore opens (creating if needed) the summary database at path.
func OpenSummaryStore(path string) (*SummaryStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "OpenSummaryStore")
	defer timer.Stop()

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		logging.StoreError("failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("failed to set sqlite busy_timeout: %v", err)
	}

	s := &SummaryStore{db: db, path: path}
	if err := s.initialize(); err != nil {
		logging.StoreError("failed to initialize schema: %v", err)
		db.Close()
		return nil, err
	}
	logging.Store("summary store ready at %s", path)
	return s, nil
}

// Close closes the database.
func (s *SummaryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Path returns the database path.
func (s *SummaryStore) Path() string { return s.path }

// Upsert inserts the run or replaces the existing row with the same name.
func (s *SummaryStore) Upsert(ctx context.Context, r RunSummary) error {
	if r.Name == "" {
		return errors.New("run summary has no project name")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (name, objective, project_type, started_at, ended_at, status, backend, run_id, halt_error, warnings)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			objective = excluded.objective,
			project_type = excluded.project_type,
			started_at = excluded.started_at,
			ended_at = excluded.ended_at,
			status = excluded.status,
			backend = excluded.backend,
			run_id = excluded.run_id,
			halt_error = excluded.halt_error,
			warnings = excluded.warnings`,
		r.Name, r.Objective, r.ProjectType,
		formatTime(r.StartedAt), formatTime(r.EndedAt),
		r.Status, r.Backend, r.RunID, r.HaltError, r.Warnings,
	)
	if err != nil {
		logging.StoreError("failed to upsert run %s: %v", r.Name, err)
		return fmt.Errorf("failed to upsert run %s: %w", r.Name, err)
	}
	logging.StoreDebug("upserted run %s (status=%s)", r.Name, r.Status)
	return nil
}

// Get returns the row for name.
func (s *SummaryStore) Get(ctx context.Context, name string) (RunSummary, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE name = ?`, name)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunSummary{}, false, nil
	}
	if err != nil {
		return RunSummary{}, false, fmt.Errorf("failed to read run %s: %w", name, err)
	}
	return r, true, nil
}

// Recent returns up to limit rows, most recently ended first.
func (s *SummaryStore) Recent(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 10
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY ended_at DESC, name LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const runColumns = "name, objective, project_type, started_at, ended_at, status, backend, run_id, halt_error, warnings"

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(sc scanner) (RunSummary, error) {
	var r RunSummary
	var started, ended string
	err := sc.Scan(&r.Name, &r.Objective, &r.ProjectType, &started, &ended,
		&r.Status, &r.Backend, &r.RunID, &r.HaltError, &r.Warnings)
	if err != nil {
		return RunSummary{}, err
	}
	r.StartedAt = parseTime(started)
	r.EndedAt = parseTime(ended)
	return r, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
