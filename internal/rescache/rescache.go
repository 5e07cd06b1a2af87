// Package rescache keeps fetched resources in a durable store together with
// the time they were fetched, and decides when a copy is too old to use.
//
// Each resource occupies two keys: prefix+key holds the raw text and
// prefix+key+"-time" the fetch time in decimal epoch milliseconds.
package rescache

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/juju/clock"

	"github.com/Adithya-Monish-Kumar-K/static-site-search/internal/fetch"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/metrics"
)

// DefaultExpiry is how long a fetched copy stays fresh.
const DefaultExpiry = 24 * time.Hour

const timeSuffix = "-time"

// Options configures a Cache. Zero values take the defaults.
type Options struct {
	Prefix  string
	Expiry  time.Duration
	Clock   clock.Clock
	Metrics *metrics.Metrics
}

// Cache is the only component that reads or writes the store.
type Cache struct {
	store   storage.Store
	fetcher fetch.Fetcher
	prefix  string
	expiry  time.Duration
	clock   clock.Clock
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(store storage.Store, fetcher fetch.Fetcher, opts Options) *Cache {
	if opts.Prefix == "" {
		opts.Prefix = config.DefaultStoragePrefix
	}
	if opts.Expiry <= 0 {
		opts.Expiry = DefaultExpiry
	}
	if opts.Clock == nil {
		opts.Clock = clock.WallClock
	}
	return &Cache{
		store:   store,
		fetcher: fetcher,
		prefix:  opts.Prefix,
		expiry:  opts.Expiry,
		clock:   opts.Clock,
		metrics: opts.Metrics,
		logger:  slog.Default().With("component", "rescache"),
	}
}

// IsStale reports whether key must be refetched: the value or timestamp is
// missing or empty, the timestamp is unreadable, or it is more than the
// expiry away from now in either direction.
func (c *Cache) IsStale(ctx context.Context, key string) (bool, error) {
	fetchedAt, ok, err := c.FetchedAt(ctx, key)
	if err != nil {
		return false, err
	}
	stale := !ok
	if ok {
		value, found, err := c.store.Get(ctx, c.prefix+key)
		if err != nil {
			return false, err
		}
		age := c.clock.Now().Sub(fetchedAt)
		stale = !found || value == "" || age > c.expiry || -age > c.expiry
	}
	c.observeCheck(key, stale)
	return stale, nil
}

// FetchedAt returns when key was last stored. ok is false when there is no
// usable timestamp.
func (c *Cache) FetchedAt(ctx context.Context, key string) (time.Time, bool, error) {
	raw, found, err := c.store.Get(ctx, c.prefix+key+timeSuffix)
	if err != nil || !found || raw == "" {
		return time.Time{}, false, err
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.logger.Warn("unreadable resource timestamp", "resource", key, "value", raw)
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

// Refresh fetches url and stores the text under key followed by the current
// time. A failed fetch leaves the previous entry untouched.
func (c *Cache) Refresh(ctx context.Context, key, url string) error {
	start := c.clock.Now()
	text, err := c.fetcher.Fetch(ctx, url)
	if c.metrics != nil {
		c.metrics.ResourceFetchDuration.WithLabelValues(key).Observe(c.clock.Now().Sub(start).Seconds())
	}
	if err != nil {
		c.observeRefresh(key, "fetch_error")
		return fmt.Errorf("refreshing %s from %s: %w", key, url, err)
	}
	if err := c.store.Set(ctx, c.prefix+key, text); err != nil {
		c.observeRefresh(key, "storage_error")
		return fmt.Errorf("refreshing %s: %w", key, err)
	}
	now := strconv.FormatInt(c.clock.Now().UnixMilli(), 10)
	if err := c.store.Set(ctx, c.prefix+key+timeSuffix, now); err != nil {
		c.observeRefresh(key, "storage_error")
		return fmt.Errorf("refreshing %s: %w", key, err)
	}
	c.observeRefresh(key, "ok")
	c.logger.Info("resource refreshed", "resource", key, "url", url, "bytes", len(text))
	return nil
}

// Get returns the last stored text for key.
func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	return c.store.Get(ctx, c.prefix+key)
}

func (c *Cache) observeCheck(key string, stale bool) {
	if c.metrics == nil {
		return
	}
	result := "fresh"
	if stale {
		result = "stale"
	}
	c.metrics.ResourceChecksTotal.WithLabelValues(key, result).Inc()
}

func (c *Cache) observeRefresh(key, status string) {
	if c.metrics != nil {
		c.metrics.ResourceRefreshTotal.WithLabelValues(key, status).Inc()
	}
}
