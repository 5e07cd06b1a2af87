// Package sqlite opens a modernc.org/sqlite database with production pragmas
// (WAL, busy timeout, NORMAL sync) and retries statements that hit
// SQLITE_BUSY.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/config"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

const maxBusyRetries = 3

type Client struct {
	DB *sql.DB
}

// New opens the database at cfg.Path, creating parent directories, applies
// the pragmas and executes each schema statement.
func New(cfg config.SQLiteConfig, schema ...string) (*Client, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite: empty path")
	}
	if cfg.Path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// Every connection to :memory: is a separate database.
	if cfg.Path == MemoryPath {
		db.SetMaxOpenConns(1)
	}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 10_000
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy),
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range append(pragmas, schema...) {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", firstLine(stmt), err)
		}
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	return &Client{DB: db}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

func (c *Client) Close() error {
	return c.DB.Close()
}

// Exec runs a statement, retrying up to three times with 100/200/300 ms
// backoff while the database is busy.
func (c *Client) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	for i := 0; ; i++ {
		res, err := c.DB.ExecContext(ctx, query, args...)
		if err == nil || !IsBusy(err) || i == maxBusyRetries-1 {
			return res, err
		}
		select {
		case <-time.After(time.Duration(100*(i+1)) * time.Millisecond):
		case <-ctx.Done():
			return nil, fmt.Errorf("sqlite: cancelled during busy retry: %w", ctx.Err())
		}
	}
}

// IsBusy reports whether err indicates an SQLite BUSY condition.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
