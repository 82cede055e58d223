package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
)

// schemaVersion is bumped whenever schemaDDL changes incompatibly.
const schemaVersion = 1

// ErrSchemaVersion is returned by Migrate when the database was written by
// an incompatible version.
var ErrSchemaVersion = errors.New("store: incompatible schema version")

// Store is the SQLite data access layer for check results: files, their
// module dependencies, diagnostics, runs and metadata.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates all tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	stored, err := s.GetMetadata("schema_version")
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	want := strconv.Itoa(schemaVersion)
	if stored == "" {
		return s.SetMetadata("schema_version", want)
	}
	if stored != want {
		return fmt.Errorf("%w: have %s, want %s", ErrSchemaVersion, stored, want)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS files (
  id              INTEGER PRIMARY KEY,
  path            TEXT NOT NULL UNIQUE,
  hash            TEXT NOT NULL,
  config_hash     TEXT NOT NULL,
  last_checked    TIMESTAMP
);

CREATE TABLE IF NOT EXISTS dependencies (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
  path            TEXT NOT NULL,
  hash            TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS diagnostics (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
  run_id          TEXT NOT NULL,
  kind            TEXT NOT NULL,
  func_name       TEXT NOT NULL,
  param_name      TEXT,
  type_text       TEXT,
  line            INTEGER,
  col             INTEGER,
  byte_offset     INTEGER,
  decl_path       TEXT,
  message         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
  id              INTEGER PRIMARY KEY,
  run_id          TEXT NOT NULL UNIQUE,
  started_at      TIMESTAMP NOT NULL,
  finished_at     TIMESTAMP,
  config_hash     TEXT NOT NULL,
  files_checked   INTEGER DEFAULT 0,
  files_skipped   INTEGER DEFAULT 0,
  diagnostics     INTEGER DEFAULT 0,
  errors          INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS metadata (
  key             TEXT PRIMARY KEY,
  value           TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_dependencies_file ON dependencies(file_id);
CREATE INDEX IF NOT EXISTS idx_dependencies_path ON dependencies(path);
CREATE INDEX IF NOT EXISTS idx_diagnostics_file ON diagnostics(file_id);
CREATE INDEX IF NOT EXISTS idx_diagnostics_kind ON diagnostics(kind);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`

// DeleteFile transactionally removes a file with its dependencies and
// diagnostics. Deleting an unknown path is not an error.
func (s *Store) DeleteFile(path string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteFileTx(tx, path); err != nil {
		return err
	}
	return tx.Commit()
}

func deleteFileTx(tx *sql.Tx, path string) error {
	var id int64
	err := tx.QueryRow("SELECT id FROM files WHERE path = ?", path).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup file: %w", err)
	}
	for _, q := range []string{
		"DELETE FROM diagnostics WHERE file_id = ?",
		"DELETE FROM dependencies WHERE file_id = ?",
		"DELETE FROM files WHERE id = ?",
	} {
		if _, err := tx.Exec(q, id); err != nil {
			return fmt.Errorf("delete file data: %w", err)
		}
	}
	return nil
}

// GetMetadata returns the value stored under key, or "" when unset.
func (s *Store) GetMetadata(key string) (string, error) {
	var v string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get metadata %s: %w", key, err)
	}
	return v, nil
}

// SetMetadata stores value under key.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set metadata %s: %w", key, err)
	}
	return nil
}
