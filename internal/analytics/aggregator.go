package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/juju/clock"

	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/proto"
)

// maxSamples bounds the latency window used for percentiles.
const maxSamples = 10000

type AggregatedStats struct {
	TotalSearches     int64            `json:"total_searches"`
	ZeroResultCount   int64            `json:"zero_result_count"`
	EmptyQueryCount   int64            `json:"empty_query_count"`
	AvgLatencyMs      float64          `json:"avg_latency_ms"`
	P50LatencyMs      float64          `json:"p50_latency_ms"`
	P95LatencyMs      float64          `json:"p95_latency_ms"`
	P99LatencyMs      float64          `json:"p99_latency_ms"`
	BySource          map[string]int64 `json:"by_source"`
	TopQueries        []QueryCount     `json:"top_queries"`
	ZeroResultQueries []QueryCount     `json:"zero_result_queries"`
	QueriesPerMinute  float64          `json:"queries_per_minute"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator keeps running query statistics in memory.
type Aggregator struct {
	mu                sync.Mutex
	totalSearches     int64
	zeroResults       int64
	emptyQueries      int64
	latencies         []float64
	next              int
	bySource          map[string]int64
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64

	clock     clock.Clock
	startTime time.Time
	logger    *slog.Logger
}

// NewAggregator creates an empty Aggregator. A nil clk uses the wall clock.
func NewAggregator(clk clock.Clock) *Aggregator {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Aggregator{
		latencies:         make([]float64, 0, 1024),
		bySource:          make(map[string]int64),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		clock:             clk,
		startTime:         clk.Now(),
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// Track records event.
func (a *Aggregator) Track(event proto.SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalSearches++
	a.bySource[event.Source]++
	if event.Tokens == 0 {
		a.emptyQueries++
		return
	}
	a.queryCounts[event.Query]++
	if event.NoResults {
		a.zeroResults++
		a.zeroResultQueries[event.Query]++
	}
	if len(a.latencies) < maxSamples {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.next] = event.LatencyMs
		a.next = (a.next + 1) % maxSamples
	}
}

// HandleEvent returns a Kafka handler feeding agg from the analytics topic.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[proto.SearchEvent](value)
		if err != nil {
			agg.logger.Error("failed to decode analytics event", "error", err)
			return nil
		}
		agg.Track(event)
		return nil
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := AggregatedStats{
		TotalSearches:   a.totalSearches,
		ZeroResultCount: a.zeroResults,
		EmptyQueryCount: a.emptyQueries,
		BySource:        make(map[string]int64, len(a.bySource)),
	}
	for k, v := range a.bySource {
		stats.BySource[k] = v
	}
	if len(a.latencies) > 0 {
		sorted := make([]float64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Float64s(sorted)

		var sum float64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = sum / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, 10)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, 10)
	if elapsed := a.clock.Now().Sub(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}
	return stats
}

func percentile(sorted []float64, pct int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN returns the n most frequent queries, ties in query order.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
