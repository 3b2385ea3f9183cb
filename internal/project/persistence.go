package project

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Qnatz/Qrews-sub000/internal/logging"
)

// Load reads the record at path. It never fails:
//   - file absent: a default record is constructed and persisted
//   - unreadable, unparsable or schema-invalid: the problem is logged and an
//     in-memory default is returned; the bad file is left untouched
func Load(path string) *Record {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		rec := New("")
		logging.Persistence("no record at %s, creating default", path)
		Save(rec, path)
		return rec
	}
	if err != nil {
		logging.PersistenceError("failed to read record %s: %v", path, err)
		return New("")
	}

	rec, err := decode(data)
	if err != nil {
		logging.PersistenceError("record %s is invalid, using defaults (file left untouched): %v", path, err)
		return New("")
	}
	logging.PersistenceDebug("loaded record %s (%d bytes)", path, len(data))
	return rec
}

func decode(data []byte) (*Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	rec := New("")
	if err := dec.Decode(rec); err != nil {
		return nil, fmt.Errorf("failed to parse record: %w", err)
	}
	if rec.Proposals == nil {
		rec.Proposals = make(map[Category][]Proposal)
	}
	if rec.ApprovedStack == nil {
		rec.ApprovedStack = make(map[Category]string)
	}
	if rec.Rationale.Categories == nil {
		rec.Rationale.Categories = make(map[Category]CategoryRationale)
	}
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}
	return rec, nil
}

// Save writes the record to path as indented JSON. It never fails; errors
// are logged and reported through the return value.
func Save(rec *Record, path string) bool {
	rec.mu.Lock()
	data, err := json.MarshalIndent(rec, "", "  ")
	rec.mu.Unlock()
	if err != nil {
		logging.PersistenceError("failed to marshal record: %v", err)
		return false
	}
	if err := writeFile(path, data); err != nil {
		logging.PersistenceError("failed to write record %s: %v", path, err)
		return false
	}
	logging.PersistenceDebug("record saved: %s (%d bytes)", path, len(data))
	return true
}

// writeFile replaces path atomically via a temp file and rename.
func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// WriteJSON writes any value as indented JSON through the same atomic path.
// Used for snapshots.
func WriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}
	return writeFile(path, data)
}
