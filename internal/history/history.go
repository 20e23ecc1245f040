// Package history persists build reports in SQLite so the dev server
// and CLI can show recent build results.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one recorded build.
type Entry struct {
	BuildID  string          `json:"build_id"`
	Kind     string          `json:"kind"` // full|incremental
	Outcome  string          `json:"outcome"`
	Started  time.Time       `json:"started"`
	Finished time.Time       `json:"finished"`
	Created  int             `json:"created"`
	Updated  int             `json:"updated"`
	Skipped  int             `json:"skipped"`
	Failed   int             `json:"failed"`
	Report   json.RawMessage `json:"report,omitempty"` // full report document
}

// Store is a SQLite-backed build history.
// Use ":memory:" for an in-memory database.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (and initializes) the history database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize history schema: %w", err)
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS builds (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		build_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		outcome TEXT NOT NULL,
		started INTEGER NOT NULL,
		finished INTEGER NOT NULL,
		created INTEGER NOT NULL,
		updated INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		report BLOB
	);
	CREATE INDEX IF NOT EXISTS idx_builds_build_id ON builds(build_id);
	CREATE INDEX IF NOT EXISTS idx_builds_started ON builds(started);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record appends one build entry.
func (s *Store) Record(ctx context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO builds (build_id, kind, outcome, started, finished, created, updated, skipped, failed, report)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.BuildID, e.Kind, e.Outcome,
		e.Started.UnixNano(), e.Finished.UnixNano(),
		e.Created, e.Updated, e.Skipped, e.Failed, []byte(e.Report),
	)
	if err != nil {
		return fmt.Errorf("insert build entry: %w", err)
	}
	return nil
}

// Recent returns the latest n builds, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT build_id, kind, outcome, started, finished, created, updated, skipped, failed, report
		 FROM builds ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query builds: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var e Entry
		var started, finished int64
		var report []byte
		if err := rows.Scan(&e.BuildID, &e.Kind, &e.Outcome, &started, &finished,
			&e.Created, &e.Updated, &e.Skipped, &e.Failed, &report); err != nil {
			return nil, fmt.Errorf("scan build entry: %w", err)
		}
		e.Started = time.Unix(0, started)
		e.Finished = time.Unix(0, finished)
		e.Report = json.RawMessage(report)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close releases the underlying database.
func (s *Store) Close() error { return s.db.Close() }
