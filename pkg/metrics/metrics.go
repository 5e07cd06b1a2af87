// Package metrics defines the Prometheus metric collectors used by the
// search service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestsInFlight  prometheus.Gauge
	SearchQueriesTotal    *prometheus.CounterVec
	SearchLatency         prometheus.Histogram
	SearchResultsCount    prometheus.Histogram
	DataIntegrityErrors   prometheus.Counter
	ResourceChecksTotal   *prometheus.CounterVec
	ResourceRefreshTotal  *prometheus.CounterVec
	ResourceFetchDuration *prometheus.HistogramVec
	LoaderState           prometheus.Gauge
	LoadCyclesTotal       *prometheus.CounterVec
	IndexTerms            prometheus.Gauge
	IndexDocuments        prometheus.Gauge
	CircuitBreakerState   *prometheus.GaugeVec
}

// New creates all collectors and registers them with reg. A nil reg uses
// the default Prometheus registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by outcome (results, zero_result, empty_query, not_ready, error).",
			},
			[]string{"outcome"},
		),
		SearchLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Query engine latency in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
			},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of results returned per search query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 500},
			},
		),
		DataIntegrityErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "data_integrity_errors_total",
				Help: "Postings that reference a document missing from the URL table.",
			},
		),
		ResourceChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resource_freshness_checks_total",
				Help: "Staleness checks by resource and result (fresh, stale).",
			},
			[]string{"resource", "result"},
		),
		ResourceRefreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resource_refresh_total",
				Help: "Resource refreshes by resource and status.",
			},
			[]string{"resource", "status"},
		),
		ResourceFetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "resource_fetch_duration_seconds",
				Help:    "Time spent fetching a resource from its origin.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"resource"},
		),
		LoaderState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "loader_state",
				Help: "Loader state (0=idle, 1=loading, 2=ready, 3=failed).",
			},
		),
		LoadCyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "load_cycles_total",
				Help: "Completed load cycles by status.",
			},
			[]string{"status"},
		),
		IndexTerms: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_terms",
				Help: "Number of terms in the live inverted index.",
			},
		),
		IndexDocuments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_documents",
				Help: "Number of documents in the live URL table.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.DataIntegrityErrors,
		m.ResourceChecksTotal,
		m.ResourceRefreshTotal,
		m.ResourceFetchDuration,
		m.LoaderState,
		m.LoadCyclesTotal,
		m.IndexTerms,
		m.IndexDocuments,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the scrape handler for g. A nil g serves the default
// Prometheus gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
