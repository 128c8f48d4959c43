// Package store persists extractions and LLM call records in an embedded
// SQLite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// DB is an open sysrev database.
type DB struct {
	db   *sql.DB
	path string
}

// Open creates or opens the database at path and applies the schema.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &DB{db: db, path: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *DB) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *DB) Path() string {
	return s.path
}

// SQL exposes the underlying handle to sibling stores.
func (s *DB) SQL() *sql.DB {
	return s.db
}

// Ping verifies the database is usable.
func (s *DB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS extractions (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		source TEXT NOT NULL,
		source_name TEXT,
		title TEXT,
		study TEXT,
		design TEXT,
		country TEXT,
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		temperature REAL,
		input_chars INTEGER NOT NULL,
		truncated INTEGER NOT NULL DEFAULT 0,
		data_json TEXT NOT NULL,
		markdown TEXT NOT NULL,
		validation_json TEXT,
		prompt_tokens INTEGER NOT NULL DEFAULT 0,
		completion_tokens INTEGER NOT NULL DEFAULT 0,
		cost_usd REAL NOT NULL DEFAULT 0,
		llm_call_id TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_extractions_created ON extractions(created_at);

	CREATE TABLE IF NOT EXISTS llm_calls (
		id TEXT PRIMARY KEY,
		timestamp DATETIME NOT NULL,
		latency_ms INTEGER NOT NULL,
		extraction_id TEXT,
		prompt_key TEXT NOT NULL,
		prompt_cid TEXT,
		request_id TEXT,
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		temperature REAL,
		input_tokens INTEGER NOT NULL,
		output_tokens INTEGER NOT NULL,
		cost_usd REAL NOT NULL DEFAULT 0,
		finish_reason TEXT,
		response TEXT,
		success INTEGER NOT NULL,
		error_type TEXT,
		error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_llm_calls_timestamp ON llm_calls(timestamp);
	CREATE INDEX IF NOT EXISTS idx_llm_calls_extraction ON llm_calls(extraction_id);
	`
	_, err := s.db.Exec(schema)
	return err
}
