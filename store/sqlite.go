package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
    key         TEXT PRIMARY KEY,
    value       BLOB NOT NULL,
    version     INTEGER NOT NULL DEFAULT 1,
    updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
);
`

// SQLite persists entries in a single table. Change notifications only reach subscribers
// of this process.
type SQLite struct {
	db  *sql.DB
	hub *hub
}

// OpenSQLite opens (creating if needed) the database file at path and migrates it.
func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("sqlite store needs a path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running schema migration: %w", err)
	}
	return NewSQLite(db), nil
}

// NewSQLite wraps an already migrated database.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db, hub: newHub("store.sqlite")}
}

func (s *SQLite) Get(ctx context.Context, key string) (Entry, error) {
	e := Entry{Key: key}
	var updatedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT value, version, updated_at FROM entries WHERE key = ?`, key,
	).Scan(&e.Value, &e.Version, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("getting entry %s: %w", key, err)
	}
	e.UpdatedAt, _ = time.Parse(time.DateTime, updatedAt)
	return e, nil
}

func (s *SQLite) Set(ctx context.Context, key string, value []byte) (Entry, error) {
	if value == nil {
		value = []byte{}
	}
	e := Entry{Key: key, Value: value}
	var updatedAt string
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO entries (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, version = entries.version + 1, updated_at = datetime('now')
		 RETURNING version, updated_at`,
		key, value,
	).Scan(&e.Version, &updatedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("upserting entry %s: %w", key, err)
	}
	e.UpdatedAt, _ = time.Parse(time.DateTime, updatedAt)
	s.hub.publish(e)
	return e, nil
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("deleting entry %s: %w", key, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.hub.publish(Entry{Key: key, UpdatedAt: time.Now().UTC(), Deleted: true})
	}
	return nil
}

func (s *SQLite) Subscribe(ctx context.Context, prefix string) (<-chan Entry, error) {
	return s.hub.subscribe(ctx, prefix), nil
}

func (s *SQLite) Close() error {
	s.hub.close()
	return s.db.Close()
}
