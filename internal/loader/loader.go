// Package loader brings the index resources up to date and publishes the
// index once every one of them is in the cache. Work that needs the index,
// such as a search from a deep link, is queued until then.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/static-site-search/internal/deeplink"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/internal/fetch"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/internal/index"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/internal/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/proto"
)

type State int

const (
	Idle State = iota
	Loading
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Cache is the resource cache the loader refreshes and unpacks from.
type Cache interface {
	IsStale(ctx context.Context, key string) (bool, error)
	Refresh(ctx context.Context, key, url string) error
	Get(ctx context.Context, key string) (string, bool, error)
	FetchedAt(ctx context.Context, key string) (time.Time, bool, error)
}

// Resource is a cache key and the absolute URL it is fetched from.
type Resource struct {
	Key string
	URL string
}

// Resources resolves the configured items against the base URL.
func Resources(cfg config.ResourcesConfig) ([]Resource, error) {
	out := make([]Resource, 0, len(cfg.Items))
	for _, item := range cfg.Items {
		u, err := fetch.Resolve(cfg.BaseURL, item.Path)
		if err != nil {
			return nil, fmt.Errorf("resource %s: %w", item.Key, err)
		}
		out = append(out, Resource{Key: item.Key, URL: u})
	}
	return out, nil
}

type Loader struct {
	cache     Cache
	store     *index.Store
	resources []Resource
	metrics   *metrics.Metrics
	logger    *slog.Logger
	group     singleflight.Group

	// cycleMu is held by a load cycle from its first staleness check
	// through Publish, so cycles never interleave their cache writes.
	cycleMu sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	state    State
	lastErr  error
	ready    chan struct{}
	pending  []func()
	deepLink func()
}

// New creates an Idle loader. A nil m disables metrics.
func New(cache Cache, store *index.Store, resources []Resource, m *metrics.Metrics) *Loader {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Loader{
		ctx:       ctx,
		cancel:    cancel,
		cache:     cache,
		store:     store,
		resources: resources,
		metrics:   m,
		logger:    slog.Default().With("component", "loader"),
		ready:     make(chan struct{}),
	}
	l.setMetricState(Idle)
	return l
}

// Close cancels any cycle in flight. Later cycles fail immediately.
func (l *Loader) Close() {
	l.cancel()
}

func (l *Loader) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// LastError returns the error of the most recent failed cycle, nil after a
// successful one.
func (l *Loader) LastError() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

// Load refreshes stale resources and publishes the index. It does nothing
// once the loader is Ready; after a failure it may be called again.
func (l *Loader) Load(ctx context.Context) error {
	if l.State() == Ready {
		return nil
	}
	return l.run(ctx, false)
}

// Reload re-runs the load cycle. With force every resource is refetched,
// fresh or not. The current index keeps serving until the new one is
// unpacked and stays live if the cycle fails. A reload requested while
// another cycle is running starts after it; ctx only bounds the wait.
func (l *Loader) Reload(ctx context.Context, force bool) error {
	return l.run(ctx, force)
}

func (l *Loader) run(ctx context.Context, force bool) error {
	key := "load"
	if force {
		key = "load-force"
	}
	// A shared cycle outlives the caller that started it and stops only on
	// Close.
	ch := l.group.DoChan(key, func() (any, error) {
		cctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		stop := context.AfterFunc(l.ctx, cancel)
		defer stop()
		defer cancel()
		return nil, l.cycle(cctx, force)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loader) cycle(ctx context.Context, force bool) error {
	l.cycleMu.Lock()
	defer l.cycleMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	if l.state != Ready {
		l.setState(Loading)
	}
	l.mu.Unlock()

	start := time.Now()
	l.logger.Info("load cycle starting", "resources", len(l.resources), "force", force)

	var snap *index.Snapshot
	g, gctx := errgroup.WithContext(ctx)
	b := newBarrier(len(l.resources), func() error {
		var err error
		snap, err = index.Unpack(gctx, l.cache)
		return err
	})
	for _, r := range l.resources {
		g.Go(func() error {
			if err := l.ensure(gctx, r, force); err != nil {
				return err
			}
			return b.done()
		})
	}
	if len(l.resources) == 0 {
		g.Go(b.fire)
	}
	err := g.Wait()

	l.mu.Lock()
	if err != nil {
		l.lastErr = err
		if l.state != Ready {
			l.setState(Failed)
		}
		l.mu.Unlock()
		l.countCycle("error")
		l.logger.Error("load cycle failed", "error", err, "state", l.State().String())
		return err
	}
	l.store.Publish(snap)
	l.lastErr = nil
	run := l.becomeReady()
	l.mu.Unlock()

	l.countCycle("ok")
	l.logger.Info("load cycle complete",
		"terms", len(snap.Terms),
		"documents", len(snap.URLs),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	for _, fn := range run {
		fn()
	}
	return nil
}

func (l *Loader) ensure(ctx context.Context, r Resource, force bool) error {
	if !force {
		stale, err := l.cache.IsStale(ctx, r.Key)
		if err != nil {
			return fmt.Errorf("checking %s: %w", r.Key, err)
		}
		if !stale {
			l.logger.Debug("resource fresh", "resource", r.Key)
			return nil
		}
	}
	return l.cache.Refresh(ctx, r.Key, r.URL)
}

// becomeReady must be called with mu held. It returns the deferred work to
// run after mu is released.
func (l *Loader) becomeReady() []func() {
	if l.state == Ready {
		return nil
	}
	l.setState(Ready)
	close(l.ready)
	run := l.pending
	if l.deepLink != nil {
		run = append(run, l.deepLink)
	}
	l.pending, l.deepLink = nil, nil
	return run
}

// WhenReady runs fn now if the index is ready, otherwise exactly once when
// it becomes ready.
func (l *Loader) WhenReady(fn func()) {
	l.mu.Lock()
	if l.state != Ready {
		l.pending = append(l.pending, fn)
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()
	fn()
}

// DeepLink decodes a q= fragment and hands the query to fn once the index
// is ready. Only one deep link waits at a time; a newer one replaces it.
// It returns false when fragment carries no query.
func (l *Loader) DeepLink(fragment string, fn func(query string)) bool {
	query, ok := deeplink.Parse(fragment)
	if !ok {
		return false
	}
	l.mu.Lock()
	if l.state != Ready {
		l.deepLink = func() { fn(query) }
		l.mu.Unlock()
		l.logger.Debug("deep link deferred", "query", query)
		return true
	}
	l.mu.Unlock()
	fn(query)
	return true
}

// Wait blocks until the loader is Ready or ctx is done.
func (l *Loader) Wait(ctx context.Context) error {
	select {
	case <-l.ready:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", apperrors.ErrNotReady, ctx.Err())
	}
}

// Status reports the loader state, the freshness of every resource and the
// size of the live index.
func (l *Loader) Status(ctx context.Context) (*proto.StatusResponse, error) {
	l.mu.Lock()
	state, lastErr := l.state, l.lastErr
	l.mu.Unlock()

	resp := &proto.StatusResponse{
		State:            state.String(),
		Ready:            state == Ready,
		TokenizerVersion: tokenizer.Version,
		Resources:        make([]proto.ResourceStatus, 0, len(l.resources)),
	}
	if lastErr != nil {
		resp.LastError = lastErr.Error()
	}
	if snap := l.store.Current(); snap != nil {
		resp.Terms = len(snap.Terms)
		resp.Documents = len(snap.URLs)
		resp.LoadedAt = snap.LoadedAt.UnixMilli()
	}
	for _, r := range l.resources {
		stale, err := l.cache.IsStale(ctx, r.Key)
		if err != nil {
			return nil, err
		}
		rs := proto.ResourceStatus{Key: r.Key, Stale: stale}
		if at, ok, err := l.cache.FetchedAt(ctx, r.Key); err != nil {
			return nil, err
		} else if ok {
			rs.FetchedAt = at.UnixMilli()
		}
		resp.Resources = append(resp.Resources, rs)
	}
	return resp, nil
}

// setState must be called with mu held.
func (l *Loader) setState(s State) {
	l.state = s
	l.setMetricState(s)
}

func (l *Loader) setMetricState(s State) {
	if l.metrics != nil {
		l.metrics.LoaderState.Set(float64(s))
	}
}

func (l *Loader) countCycle(status string) {
	if l.metrics != nil {
		l.metrics.LoadCyclesTotal.WithLabelValues(status).Inc()
	}
}
