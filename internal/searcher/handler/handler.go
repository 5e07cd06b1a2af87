// Package handler serves the search API over HTTP and the internal RPC
// transport.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/static-site-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/internal/searcher/engine"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/proto"
)

// Searcher answers queries, normally an *engine.Engine.
type Searcher interface {
	SearchLimit(ctx context.Context, query string, limit int) (*engine.SearchResult, error)
}

// Loader is the part of the loader the API drives.
type Loader interface {
	Wait(ctx context.Context) error
	DeepLink(fragment string, fn func(query string)) bool
	Status(ctx context.Context) (*proto.StatusResponse, error)
	Reload(ctx context.Context, force bool) error
}

type Handler struct {
	searcher     Searcher
	loader       Loader
	tracker      analytics.Tracker
	defaultLimit int
	maxResults   int
	readyWait    time.Duration
	logger       *slog.Logger
}

// New creates a Handler. A nil tracker disables analytics.
func New(s Searcher, l Loader, tracker analytics.Tracker, cfg config.SearchConfig) *Handler {
	return &Handler{
		searcher:     s,
		loader:       l,
		tracker:      tracker,
		defaultLimit: cfg.DefaultLimit,
		maxResults:   cfg.MaxResults,
		readyWait:    cfg.ReadyWaitTimeout,
		logger:       slog.Default().With("component", "search-handler"),
	}
}

// Routes registers the API on mux.
func (h *Handler) Routes(mux *http.ServeMux, reload http.Handler) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/deeplink", h.DeepLink)
	mux.HandleFunc("GET /api/v1/status", h.Status)
	if reload == nil {
		reload = http.HandlerFunc(h.Reload)
	}
	mux.Handle("POST /api/v1/reload", reload)
}

// Search serves GET /api/v1/search?q=&limit=&wait=. Until the index is
// loaded it answers 503 unless wait=true, which blocks until the index is
// ready or the wait times out.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := h.limit(q.Get("limit"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx := r.Context()
	if wait, _ := strconv.ParseBool(q.Get("wait")); wait {
		waitCtx, cancel := h.waitContext(ctx)
		err := h.loader.Wait(waitCtx)
		cancel()
		if err != nil {
			h.writeFailure(w, ctx, q.Get("q"), err)
			return
		}
	}
	h.search(w, ctx, q.Get("q"), limit, analytics.SourceHTTP)
}

// DeepLink serves GET /api/v1/deeplink?fragment=%23q%3D... The search runs
// once the index is ready. Only the newest waiting deep link is answered;
// an older one still waiting times out with 503.
func (h *Handler) DeepLink(w http.ResponseWriter, r *http.Request) {
	limit, err := h.limit(r.URL.Query().Get("limit"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx := r.Context()
	queries := make(chan string, 1)
	if !h.loader.DeepLink(r.URL.Query().Get("fragment"), func(query string) { queries <- query }) {
		h.writeError(w, http.StatusBadRequest, "fragment must be of the form #q=<query>")
		return
	}
	waitCtx, cancel := h.waitContext(ctx)
	defer cancel()
	select {
	case query := <-queries:
		h.search(w, ctx, query, limit, analytics.SourceDeepLink)
	case <-waitCtx.Done():
		h.writeFailure(w, ctx, "", apperrors.ErrNotReady)
	}
}

// Status serves GET /api/v1/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.loader.Status(r.Context())
	if err != nil {
		h.writeFailure(w, r.Context(), "", err)
		return
	}
	h.writeJSON(w, http.StatusOK, st)
}

// Reload serves POST /api/v1/reload[?force=true].
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	ctx := r.Context()
	if err := h.loader.Reload(ctx, force); err != nil {
		logger.FromContext(ctx).Error("reload failed", "force", force, "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}
	logger.FromContext(ctx).Info("index reloaded", "force", force)
	h.Status(w, r)
}

func (h *Handler) search(w http.ResponseWriter, ctx context.Context, query string, limit int, source string) {
	res, err := h.searcher.SearchLimit(ctx, query, limit)
	if err != nil {
		h.writeFailure(w, ctx, query, err)
		return
	}
	logger.FromContext(ctx).Info("search completed",
		"query", query,
		"results", len(res.Results),
		"skipped", res.Skipped,
		"source", source,
		"latency_ms", res.Latency.Milliseconds(),
	)
	if h.tracker != nil {
		h.tracker.Track(analytics.NewSearchEvent(res, source, time.Now()))
	}
	h.writeJSON(w, http.StatusOK, ToResponse(res))
}

// limit parses the limit parameter. A missing value uses the default; the
// result never exceeds maxResults, and 0 means "all" only without a cap.
func (h *Handler) limit(raw string) (int, error) {
	limit := h.defaultLimit
	if raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return 0, errors.New("limit must be a non-negative integer")
		}
		limit = parsed
	}
	if h.maxResults > 0 && (limit <= 0 || limit > h.maxResults) {
		limit = h.maxResults
	}
	return limit, nil
}

func (h *Handler) waitContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.readyWait <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, h.readyWait)
}

// ToResponse converts an engine result to its wire form.
func ToResponse(res *engine.SearchResult) *proto.SearchResponse {
	out := &proto.SearchResponse{
		Query:     res.Query,
		Tokens:    res.Tokens,
		Results:   make([]proto.ResultRecord, len(res.Results)),
		NoResults: res.NoResults,
		Skipped:   res.Skipped,
		LatencyMs: float64(res.Latency.Microseconds()) / 1000,
	}
	if out.Tokens == nil {
		out.Tokens = []string{}
	}
	for i, r := range res.Results {
		out.Results[i] = proto.ResultRecord(r)
	}
	return out
}

func (h *Handler) writeFailure(w http.ResponseWriter, ctx context.Context, query string, err error) {
	status := apperrors.HTTPStatusCode(err)
	switch {
	case errors.Is(err, apperrors.ErrNotReady):
		h.writeError(w, status, "index loading")
	case status >= http.StatusInternalServerError:
		logger.FromContext(ctx).Error("request failed", "query", query, "error", err)
		h.writeError(w, status, "search failed")
	default:
		h.writeError(w, status, err.Error())
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
