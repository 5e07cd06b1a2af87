package index

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/metrics"
)

// Source yields cached resource text by key.
type Source interface {
	Get(ctx context.Context, key string) (string, bool, error)
}

// Unpack parses both index resources from src into a new Snapshot. Either
// both parse or an error wrapping apperrors.ErrParse is returned.
func Unpack(ctx context.Context, src Source) (*Snapshot, error) {
	var snap Snapshot
	if err := decode(ctx, src, KeyIndex, &snap.Terms); err != nil {
		return nil, err
	}
	if snap.Terms == nil {
		return nil, fmt.Errorf("%w: %s is null", apperrors.ErrParse, KeyIndex)
	}
	if err := decode(ctx, src, KeyURLs, &snap.URLs); err != nil {
		return nil, err
	}
	if snap.URLs == nil {
		return nil, fmt.Errorf("%w: %s is null", apperrors.ErrParse, KeyURLs)
	}
	snap.LoadedAt = time.Now()
	return &snap, nil
}

func decode(ctx context.Context, src Source, key string, into any) error {
	raw, ok, err := src.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("reading %s: %w", key, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s is not cached", apperrors.ErrParse, key)
	}
	if err := json.Unmarshal([]byte(raw), into); err != nil {
		return fmt.Errorf("%w: %s: %w", apperrors.ErrParse, key, err)
	}
	return nil
}

// Store holds the live Snapshot. Readers never block and never observe a
// partly built index.
type Store struct {
	current atomic.Pointer[Snapshot]
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewStore(m *metrics.Metrics) *Store {
	return &Store{
		metrics: m,
		logger:  slog.Default().With("component", "index"),
	}
}

// Publish makes snap the live snapshot.
func (s *Store) Publish(snap *Snapshot) {
	s.current.Store(snap)
	if s.metrics != nil {
		s.metrics.IndexTerms.Set(float64(len(snap.Terms)))
		s.metrics.IndexDocuments.Set(float64(len(snap.URLs)))
	}
	s.logger.Info("index published", "terms", len(snap.Terms), "documents", len(snap.URLs))
}

// Current returns the live snapshot, nil before the first Publish.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}
