// Package snapshots periodically persists aggregated analytics so query
// statistics survive restarts. PostgreSQL and SQLite are supported.
package snapshots

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/static-site-search/internal/analytics"
)

// Dialect holds the statements for one SQL engine.
type Dialect struct {
	Name   string
	Schema string
	Insert string
	Latest string
	List   string
}

var Postgres = Dialect{
	Name: "postgres",
	Schema: `CREATE TABLE IF NOT EXISTS analytics_snapshots (
		id          BIGSERIAL PRIMARY KEY,
		data        JSONB NOT NULL,
		captured_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	Insert: `INSERT INTO analytics_snapshots (data, captured_at) VALUES ($1, $2)`,
	Latest: `SELECT data FROM analytics_snapshots ORDER BY captured_at DESC, id DESC LIMIT 1`,
	List:   `SELECT data FROM analytics_snapshots ORDER BY captured_at DESC, id DESC LIMIT $1`,
}

var SQLite = Dialect{
	Name: "sqlite",
	Schema: `CREATE TABLE IF NOT EXISTS analytics_snapshots (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		data        TEXT NOT NULL,
		captured_at INTEGER NOT NULL
	)`,
	Insert: `INSERT INTO analytics_snapshots (data, captured_at) VALUES (?, ?)`,
	Latest: `SELECT data FROM analytics_snapshots ORDER BY captured_at DESC, id DESC LIMIT 1`,
	List:   `SELECT data FROM analytics_snapshots ORDER BY captured_at DESC, id DESC LIMIT ?`,
}

type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
}

// New creates the snapshot table if needed.
func New(ctx context.Context, db *sql.DB, d Dialect) (*Store, error) {
	if _, err := db.ExecContext(ctx, d.Schema); err != nil {
		return nil, fmt.Errorf("creating analytics_snapshots (%s): %w", d.Name, err)
	}
	return &Store{
		db:      db,
		dialect: d,
		logger:  slog.Default().With("component", "analytics-snapshots"),
	}, nil
}

// Save persists stats captured at at.
func (s *Store) Save(ctx context.Context, stats analytics.AggregatedStats, at time.Time) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}
	var captured any = at.UTC()
	var payload any = data
	if s.dialect.Name == SQLite.Name {
		captured = at.UnixMilli()
		payload = string(data)
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.Insert, payload, captured); err != nil {
		return fmt.Errorf("saving analytics snapshot: %w", err)
	}
	s.logger.Info("analytics snapshot saved", "total_searches", stats.TotalSearches)
	return nil
}

// Latest returns the newest snapshot, or nil if none exists yet.
func (s *Store) Latest(ctx context.Context) (*analytics.AggregatedStats, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, s.dialect.Latest).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshot: %w", err)
	}
	var stats analytics.AggregatedStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("unmarshaling snapshot: %w", err)
	}
	return &stats, nil
}

// List returns up to limit snapshots, newest first. Corrupt rows are
// skipped.
func (s *Store) List(ctx context.Context, limit int) ([]analytics.AggregatedStats, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.List, limit)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var out []analytics.AggregatedStats
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		var stats analytics.AggregatedStats
		if err := json.Unmarshal(data, &stats); err != nil {
			s.logger.Warn("skipping corrupt snapshot", "error", err)
			continue
		}
		out = append(out, stats)
	}
	return out, rows.Err()
}

// StartPeriodicSave saves agg's stats every interval and once more when ctx
// is cancelled. The returned channel closes after the final save.
func (s *Store) StartPeriodicSave(ctx context.Context, agg *analytics.Aggregator, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				if err := s.Save(ctx, agg.Stats(), now); err != nil {
					s.logger.Error("periodic snapshot failed", "error", err)
				}
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := s.Save(shutdownCtx, agg.Stats(), time.Now()); err != nil {
					s.logger.Error("final snapshot failed", "error", err)
				}
				return
			}
		}
	}()
	s.logger.Info("periodic snapshot started", "interval", interval, "dialect", s.dialect.Name)
	return done
}
