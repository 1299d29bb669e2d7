// Package statedb persists the recovery tokens of open tabs in SQLite and
// coordinates which tabby process owns them.
package statedb

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// StateDB is safe for concurrent use. Several processes may share one file;
// WAL mode and a busy timeout serialize their writes.
type StateDB struct {
	db  *sql.DB
	pid int
}

// migrations are applied in order; the index+1 is stored as user_version.
var migrations = []string{
	`CREATE TABLE metadata (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	CREATE TABLE tabs (
		id         TEXT PRIMARY KEY,
		title      TEXT NOT NULL DEFAULT '',
		sort_order INTEGER NOT NULL DEFAULT 0,
		token      TEXT NOT NULL,
		saved_at   INTEGER NOT NULL
	);
	CREATE TABLE instances (
		pid        INTEGER PRIMARY KEY,
		started_at INTEGER NOT NULL,
		seen_at    INTEGER NOT NULL,
		is_primary INTEGER NOT NULL DEFAULT 0
	);`,
}

// SchemaVersion is the version Migrate brings a database to.
var SchemaVersion = len(migrations)

// Open opens (creating if needed) the database at path. Call Migrate before
// use.
func Open(path string) (*StateDB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("statedb: mkdir: %w", err)
	}
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "foreign_keys(1)")

	db, err := sql.Open("sqlite", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("statedb: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("statedb: open %s: %w", path, err)
	}
	return &StateDB{db: db, pid: os.Getpid()}, nil
}

// Close checkpoints the WAL so the file is self-contained, then closes.
func (s *StateDB) Close() error {
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// Version returns the schema version recorded in the file.
func (s *StateDB) Version() (int, error) {
	var v int
	err := s.db.QueryRow("PRAGMA user_version").Scan(&v)
	return v, err
}

// Migrate applies the migrations the file hasn't seen yet. Running it again
// is a no-op.
func (s *StateDB) Migrate() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("statedb: begin migrate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var have int
	if err := tx.QueryRow("PRAGMA user_version").Scan(&have); err != nil {
		return fmt.Errorf("statedb: read version: %w", err)
	}
	if have > len(migrations) {
		return fmt.Errorf("statedb: schema version %d is newer than this build (%d)", have, len(migrations))
	}
	for i := have; i < len(migrations); i++ {
		if _, err := tx.Exec(migrations[i]); err != nil {
			return fmt.Errorf("statedb: migration %d: %w", i+1, err)
		}
	}
	// PRAGMA doesn't take bind parameters.
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", len(migrations))); err != nil {
		return fmt.Errorf("statedb: set version: %w", err)
	}
	return tx.Commit()
}
