package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
)`

// SQLite persists entries in a single kv table. This is the default backend:
// a local file that survives restarts, like a browser's localStorage.
type SQLite struct {
	client *sqlite.Client
}

// NewSQLite wraps a client opened with the kv schema (see Open).
func NewSQLite(c *sqlite.Client) *SQLite {
	return &SQLite{client: c}
}

func (s *SQLite) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.client.DB.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrap("get", key, err)
	}
	return v, true, nil
}

func (s *SQLite) Set(ctx context.Context, key, value string) error {
	_, err := s.client.Exec(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = strftime('%s', 'now')`,
		key, value)
	if err != nil {
		return wrap("set", key, err)
	}
	return nil
}

func (s *SQLite) Ping(ctx context.Context) error { return s.client.Ping(ctx) }
func (s *SQLite) Close() error                   { return s.client.Close() }
