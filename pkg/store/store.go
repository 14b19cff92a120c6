// Package store opens the bot's SQLite database. It uses the pure-Go driver
// (modernc.org/sqlite), so no cgo is required.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Memory opens a private in-memory database, mostly for tests.
const Memory = ":memory:"

// DB wraps the SQLite handle shared by the memory and cache packages.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and brings the schema up to
// date.
func Open(path string) (*DB, error) {
	if path != Memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("store: create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	if path == Memory {
		// Every pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: set busy timeout: %w", err)
	}

	d := &DB{db: db}
	if err := d.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return d, nil
}

// SQL returns the underlying handle.
func (d *DB) SQL() *sql.DB { return d.db }

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS memories (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		manager        TEXT NOT NULL,
		bot            TEXT NOT NULL,
		social_context TEXT NOT NULL,
		chat_source    TEXT NOT NULL DEFAULT '',
		sender         TEXT NOT NULL DEFAULT '',
		text           TEXT NOT NULL,
		created_at     INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS memories_scope
		ON memories (manager, bot, social_context)`,
	`CREATE TABLE IF NOT EXISTS cache (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		expires_at INTEGER NOT NULL DEFAULT 0
	)`,
}

func (d *DB) migrate(ctx context.Context) error {
	for _, m := range migrations {
		if _, err := d.db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
