package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/postgres"
)

// Postgres stores entries in the site_search_kv table, shared by every
// replica pointed at the same database.
type Postgres struct {
	client *postgres.Client
}

// NewPostgres creates the table if needed.
func NewPostgres(ctx context.Context, c *postgres.Client) (*Postgres, error) {
	err := c.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS site_search_kv (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
		return err
	})
	if err != nil {
		c.Close()
		return nil, wrap("migrate", "site_search_kv", err)
	}
	return &Postgres{client: c}, nil
}

func (p *Postgres) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := p.client.DB.QueryRowContext(ctx, `SELECT value FROM site_search_kv WHERE key = $1`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrap("get", key, err)
	}
	return v, true, nil
}

func (p *Postgres) Set(ctx context.Context, key, value string) error {
	_, err := p.client.DB.ExecContext(ctx,
		`INSERT INTO site_search_kv (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value)
	if err != nil {
		return wrap("set", key, err)
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.client.Ping(ctx) }
func (p *Postgres) Close() error                   { return p.client.Close() }
