// Package proto defines the wire messages shared by the HTTP API, the
// JSON-over-TCP RPC layer (see pkg/grpc) and the Kafka topics.
package proto

// ---------- Search ----------

// SearchRequest is the input to the Search RPC. Limit <= 0 returns every
// match.
type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// SearchResponse is the output of the Search RPC and of GET /api/v1/search.
// Results are in rank order.
type SearchResponse struct {
	Query     string         `json:"query"`
	Tokens    []string       `json:"tokens"`
	Results   []ResultRecord `json:"results"`
	NoResults bool           `json:"no_results"`
	Skipped   int            `json:"skipped,omitempty"`
	LatencyMs float64        `json:"latency_ms"`
}

// ResultRecord is one ranked match.
type ResultRecord struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Score   int    `json:"score"`
}

// ---------- Status ----------

// StatusRequest is the input to the Status RPC.
type StatusRequest struct{}

// StatusResponse describes the loader and the live index.
type StatusResponse struct {
	State            string           `json:"state"`
	Ready            bool             `json:"ready"`
	LastError        string           `json:"last_error,omitempty"`
	LoadedAt         int64            `json:"loaded_at,omitempty"`
	TokenizerVersion string           `json:"tokenizer_version"`
	Terms            int              `json:"terms"`
	Documents        int              `json:"documents"`
	Resources        []ResourceStatus `json:"resources"`
}

// ResourceStatus reports the freshness of one cached resource. FetchedAt is
// epoch milliseconds, zero if never fetched.
type ResourceStatus struct {
	Key       string `json:"key"`
	Stale     bool   `json:"stale"`
	FetchedAt int64  `json:"fetched_at,omitempty"`
}

// ---------- Events ----------

// IndexPublished is consumed from the index-published topic. Any message
// triggers a forced reload; BaseURL, when set, must match the configured
// base for the event to apply.
type IndexPublished struct {
	BaseURL     string `json:"base_url,omitempty"`
	Version     string `json:"version,omitempty"`
	PublishedAt int64  `json:"published_at,omitempty"`
}

// SearchEvent is published to the analytics topic for every query.
type SearchEvent struct {
	Query     string  `json:"query"`
	Tokens    int     `json:"tokens"`
	Results   int     `json:"results"`
	NoResults bool    `json:"no_results"`
	LatencyMs float64 `json:"latency_ms"`
	Source    string  `json:"source"`
	Timestamp int64   `json:"timestamp"`
}
