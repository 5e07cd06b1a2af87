// Package cache memoizes ranked results for the live index snapshot.
// Entries are keyed by token sequence and limit, so queries that tokenize
// identically share an entry, and the whole cache resets when a new
// snapshot is published.
package cache

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/static-site-search/internal/index"
)

// DefaultSize bounds the number of cached queries per snapshot.
const DefaultSize = 4096

// Entry is a cached ranking. Callers must not modify it.
type Entry[T any] struct {
	Results []T
	Skipped int
}

type QueryCache[T any] struct {
	mu      sync.Mutex
	snap    *index.Snapshot
	entries map[string]*Entry[T]
	size    int
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New[T any](size int) *QueryCache[T] {
	if size <= 0 {
		size = DefaultSize
	}
	return &QueryCache[T]{
		entries: make(map[string]*Entry[T]),
		size:    size,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// GetOrCompute returns the cached entry for tokens and limit under snap,
// running compute at most once for concurrent identical requests.
func (c *QueryCache[T]) GetOrCompute(snap *index.Snapshot, tokens []string, limit int, compute func() (*Entry[T], error)) (*Entry[T], bool, error) {
	key := buildKey(tokens, limit)
	if e, ok := c.get(snap, key); ok {
		c.hits.Add(1)
		return e, true, nil
	}
	c.misses.Add(1)
	val, err, _ := c.group.Do(fmt.Sprintf("%p|%s", snap, key), func() (any, error) {
		if e, ok := c.get(snap, key); ok {
			return e, nil
		}
		e, err := compute()
		if err != nil {
			return nil, err
		}
		c.set(snap, key, e)
		return e, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*Entry[T]), false, nil
}

func (c *QueryCache[T]) get(snap *index.Snapshot, key string) (*Entry[T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap != snap {
		return nil, false
	}
	e, ok := c.entries[key]
	return e, ok
}

func (c *QueryCache[T]) set(snap *index.Snapshot, key string, e *Entry[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap != snap {
		if c.snap != nil {
			c.logger.Debug("query cache reset for new snapshot", "entries", len(c.entries))
		}
		c.snap = snap
		c.entries = make(map[string]*Entry[T])
	}
	if len(c.entries) >= c.size {
		c.entries = make(map[string]*Entry[T])
	}
	c.entries[key] = e
}

// Len returns the number of entries for the current snapshot.
func (c *QueryCache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *QueryCache[T]) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func buildKey(tokens []string, limit int) string {
	return fmt.Sprintf("%d\x00%s", limit, strings.Join(tokens, "\x00"))
}
