package storage

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/redis"
)

// Redis stores each entry as a plain string key without expiry; staleness
// is decided by the resource cache, never by TTL.
type Redis struct {
	client *redis.Client
}

func NewRedis(c *redis.Client) *Redis {
	return &Redis{client: c}
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := r.client.Get(ctx, key)
	if err != nil {
		return "", false, wrap("get", key, err)
	}
	return v, ok, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, key, value); err != nil {
		return wrap("set", key, err)
	}
	return nil
}

func (r *Redis) Ping(ctx context.Context) error { return r.client.Ping(ctx) }
func (r *Redis) Close() error                   { return r.client.Close() }
