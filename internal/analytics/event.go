package analytics

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/static-site-search/internal/searcher/engine"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/proto"
)

// Event sources.
const (
	SourceHTTP     = "http"
	SourceDeepLink = "deeplink"
	SourceRPC      = "rpc"
	SourceCLI      = "cli"
)

// NewSearchEvent describes one answered query.
func NewSearchEvent(res *engine.SearchResult, source string, at time.Time) proto.SearchEvent {
	return proto.SearchEvent{
		Query:     res.Query,
		Tokens:    len(res.Tokens),
		Results:   len(res.Results),
		NoResults: res.NoResults,
		LatencyMs: float64(res.Latency.Microseconds()) / 1000,
		Source:    source,
		Timestamp: at.UnixMilli(),
	}
}
