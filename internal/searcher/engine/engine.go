// Package engine answers queries against the live index snapshot:
// tokenize, look up, sum term frequencies, rank, resolve and summarize.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/static-site-search/internal/index"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/internal/searcher/summary"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/internal/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/tracing"
)

// Result is one ranked match; rank is its position in the result list.
type Result struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Score   int    `json:"score"`
}

// SearchResult is the outcome of one query. Skipped counts matches dropped
// because their document id is missing from the URL table.
type SearchResult struct {
	Query     string        `json:"query"`
	Tokens    []string      `json:"tokens"`
	Results   []Result      `json:"results"`
	NoResults bool          `json:"no_results"`
	Skipped   int           `json:"skipped,omitempty"`
	Latency   time.Duration `json:"-"`
}

// Snapshots supplies the live index.
type Snapshots interface {
	Current() *index.Snapshot
}

type Engine struct {
	snapshots Snapshots
	cache     *cache.QueryCache[Result]
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New creates an Engine. A nil m disables metrics.
func New(snapshots Snapshots, m *metrics.Metrics) *Engine {
	return &Engine{
		snapshots: snapshots,
		cache:     cache.New[Result](cache.DefaultSize),
		metrics:   m,
		logger:    slog.Default().With("component", "engine"),
	}
}

// Search runs query and returns every match.
func (e *Engine) Search(ctx context.Context, query string) (*SearchResult, error) {
	return e.SearchLimit(ctx, query, 0)
}

// Query returns just the ranked results of query.
func (e *Engine) Query(ctx context.Context, query string) ([]Result, error) {
	res, err := e.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	return res.Results, nil
}

// SearchLimit runs query and keeps the first limit results; limit <= 0
// keeps all. A query with no tokens succeeds with NoResults set even before
// the index is ready; any other query returns apperrors.ErrNotReady until a
// snapshot has been published.
func (e *Engine) SearchLimit(ctx context.Context, query string, limit int) (*SearchResult, error) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "search", logger.RequestID(ctx))
	defer func() {
		span.End()
		span.Log(e.logger)
	}()

	_, tokSpan := tracing.StartChildSpan(ctx, "tokenize")
	tokens := tokenizer.Tokenize(query)
	tokSpan.SetAttr("tokens", len(tokens))
	tokSpan.End()

	res := &SearchResult{Query: query, Tokens: tokens, Results: []Result{}}
	if len(tokens) == 0 {
		res.NoResults = true
		e.observe("empty_query", res, start)
		return res, nil
	}

	snap := e.snapshots.Current()
	if snap == nil {
		e.observe("not_ready", res, start)
		return nil, fmt.Errorf("searching %q: %w", query, apperrors.ErrNotReady)
	}

	entry, hit, err := e.cache.GetOrCompute(snap, tokens, limit, func() (*cache.Entry[Result], error) {
		return e.compute(ctx, snap, tokens, limit), nil
	})
	if err != nil {
		e.observe("error", res, start)
		return nil, err
	}
	span.SetAttr("cache_hit", hit)

	res.Results = entry.Results
	res.Skipped = entry.Skipped
	res.NoResults = len(res.Results) == 0
	outcome := "results"
	if res.NoResults {
		outcome = "zero_result"
	}
	e.observe(outcome, res, start)
	return res, nil
}

func (e *Engine) compute(ctx context.Context, snap *index.Snapshot, tokens []string, limit int) *cache.Entry[Result] {
	_, rankSpan := tracing.StartChildSpan(ctx, "rank")
	lists := make([][]index.Posting, 0, len(tokens))
	for _, tok := range tokens {
		if ps := snap.Postings(tok); len(ps) > 0 {
			lists = append(lists, ps)
		}
	}
	ranked := ranker.Rank(lists, 0)
	rankSpan.SetAttr("candidates", len(ranked))
	rankSpan.End()

	_, resolveSpan := tracing.StartChildSpan(ctx, "resolve")
	defer resolveSpan.End()
	capacity := len(ranked)
	if limit > 0 && limit < capacity {
		capacity = limit
	}
	entry := &cache.Entry[Result]{Results: make([]Result, 0, capacity)}
	for _, sd := range ranked {
		if limit > 0 && len(entry.Results) >= limit {
			break
		}
		doc, ok := snap.Document(sd.DocID)
		if !ok {
			entry.Skipped++
			if e.metrics != nil {
				e.metrics.DataIntegrityErrors.Inc()
			}
			logger.FromContext(ctx).Warn("posting references unknown document",
				"error", apperrors.ErrDataIntegrity, "doc_id", sd.DocID, "tokens", tokens)
			continue
		}
		entry.Results = append(entry.Results, Result{
			URL:     doc.URL,
			Title:   doc.Title,
			Summary: summary.Summarize(doc.Description),
			Score:   sd.Score,
		})
	}
	resolveSpan.SetAttr("skipped", entry.Skipped)
	return entry
}

func (e *Engine) observe(outcome string, res *SearchResult, start time.Time) {
	res.Latency = time.Since(start)
	if e.metrics == nil {
		return
	}
	e.metrics.SearchQueriesTotal.WithLabelValues(outcome).Inc()
	if outcome == "results" || outcome == "zero_result" {
		e.metrics.SearchLatency.Observe(res.Latency.Seconds())
		e.metrics.SearchResultsCount.Observe(float64(len(res.Results)))
	}
}
