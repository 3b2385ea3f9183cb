package store

import (
	"database/sql"
	"fmt"

	"github.com/Qnatz/Qrews-sub000/internal/logging"
)

const createRunsTable = `
CREATE TABLE IF NOT EXISTS runs (
	name         TEXT PRIMARY KEY,
	objective    TEXT NOT NULL DEFAULT '',
	project_type TEXT NOT NULL DEFAULT '',
	started_at   TEXT NOT NULL DEFAULT '',
	ended_at     TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT ''
)`

// column is a column added after the first schema version.
type column struct {
	Table  string
	Column string
	Def    string
}

// addedColumns are applied to databases created by older versions.
var addedColumns = []column{
	{"runs", "backend", "TEXT NOT NULL DEFAULT ''"},
	{"runs", "run_id", "TEXT NOT NULL DEFAULT ''"},
	{"runs", "halt_error", "TEXT NOT NULL DEFAULT ''"},
	{"runs", "warnings", "INTEGER NOT NULL DEFAULT 0"},
}

func (s *SummaryStore) initialize() error {
	if _, err := s.db.Exec(createRunsTable); err != nil {
		return fmt.Errorf("failed to create runs table: %w", err)
	}
	for _, c := range addedColumns {
		if columnExists(s.db, c.Table, c.Column) {
			continue
		}
		query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", c.Table, c.Column, c.Def)
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to add column %s.%s: %w", c.Table, c.Column, err)
		}
		logging.Store("migrated: added column %s.%s", c.Table, c.Column)
	}
	return nil
}

// columnExists checks if a column exists in a table using PRAGMA table_info.
func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		logging.StoreDebug("PRAGMA table_info(%s) failed: %v", table, err)
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var cid, notnull, pk int
		var name, ctype string
		var dflt interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}
