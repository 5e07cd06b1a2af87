// Package storage provides the durable string key-value stores the resource
// cache persists into. Keys are used verbatim; namespacing is the caller's
// job.
package storage

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/sqlite"
)

// Store is a process-wide string key-value store. Implementations are safe
// for concurrent use. Get reports ok=false for a missing key; errors are
// reserved for backend failures and wrap apperrors.ErrStorage.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Ping(ctx context.Context) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Open connects the backend selected by cfg.Store.Backend.
func Open(cfg *config.Config) (Store, error) {
	switch cfg.Store.Backend {
	case BackendMemory:
		return NewMemory(), nil
	case BackendSQLite:
		c, err := sqlite.New(cfg.SQLite, sqliteSchema)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", apperrors.ErrStorage, err)
		}
		return NewSQLite(c), nil
	case BackendRedis:
		c, err := redis.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", apperrors.ErrStorage, err)
		}
		return NewRedis(c), nil
	case BackendPostgres:
		c, err := postgres.New(cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", apperrors.ErrStorage, err)
		}
		return NewPostgres(context.Background(), c)
	default:
		return nil, fmt.Errorf("%w: unknown store backend %q", apperrors.ErrInvalidInput, cfg.Store.Backend)
	}
}

func wrap(op, key string, err error) error {
	return fmt.Errorf("%w: %s %q: %w", apperrors.ErrStorage, op, key, err)
}
