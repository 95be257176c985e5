// Package store provides SQLite access to the platform records the notifier
// works from: certificates, course grades, users, site configurations, and
// the saved notify command configuration.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

type Store struct {
	db *sql.DB
}

// Open opens (and if needed creates) the SQLite database at path and applies
// the schema.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory %q: %w", dir, err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set synchronous pragma: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to verify database connection: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY,
			username TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS certificates (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id),
			course_id TEXT NOT NULL,
			mode TEXT NOT NULL,
			status TEXT NOT NULL,
			modified TIMESTAMP NOT NULL,
			UNIQUE(user_id, course_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_certificates_modified ON certificates(modified)`,
		`CREATE TABLE IF NOT EXISTS course_grades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id),
			course_id TEXT NOT NULL,
			letter_grade TEXT NOT NULL DEFAULT '',
			percent_grade REAL NOT NULL DEFAULT 0,
			modified TIMESTAMP NOT NULL,
			UNIQUE(user_id, course_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_course_grades_modified ON course_grades(modified)`,
		`CREATE TABLE IF NOT EXISTS site_configurations (
			domain TEXT PRIMARY KEY,
			org_filter TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS notify_configurations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			enabled INTEGER NOT NULL DEFAULT 0,
			arguments TEXT NOT NULL DEFAULT '',
			changed_at TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// UpsertUser inserts or renames a user.
func (s *Store) UpsertUser(ctx context.Context, id int64, username string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET username = excluded.username`,
		id, username,
	)
	return err
}
