package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/textwand/textwand/internal/invoke"
)

const schema = `
CREATE TABLE IF NOT EXISTS attempts (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id  TEXT NOT NULL,
	operation   TEXT NOT NULL,
	provider    TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	detail      TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL,
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS attempts_request ON attempts(request_id);
CREATE INDEX IF NOT EXISTS attempts_created ON attempts(created_at);
`

// Store is the SQLite-backed attempt journal.
type Store struct {
	db *sql.DB
}

// Open opens the journal at dataDir/history.db, creating dataDir if needed.
// It enables WAL mode and bootstraps the schema. Caller must call Close.
func Open(dataDir string) (*Store, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("history: data_dir is required")
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	dbPath := filepath.Join(dataDir, "history.db")
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("history: open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record implements invoke.Recorder.
func (s *Store) Record(a invoke.Attempt) error {
	_, err := s.db.Exec(
		`INSERT INTO attempts (request_id, operation, provider, outcome, detail, duration_ms, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.RequestID, a.Operation, a.Provider, string(a.Kind), a.Detail,
		a.Duration.Milliseconds(), a.At.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("history: insert attempt: %w", err)
	}
	return nil
}

// Entry is one journaled attempt as read back for display.
type Entry struct {
	RequestID string
	Operation string
	Provider  string
	Outcome   string
	Detail    string
	Duration  time.Duration
	At        time.Time
}

// Recent returns up to n attempts, newest first.
func (s *Store) Recent(n int) ([]Entry, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := s.db.Query(
		`SELECT request_id, operation, provider, outcome, detail, duration_ms, created_at FROM attempts ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var durationMS int64
		var createdAt string
		if err := rows.Scan(&e.RequestID, &e.Operation, &e.Provider, &e.Outcome, &e.Detail, &durationMS, &createdAt); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		e.At, _ = time.Parse(time.RFC3339, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
