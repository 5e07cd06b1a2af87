package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/static-site-search/internal/analytics"
	apperrors "github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/proto"
)

const (
	MethodSearch = "SearchService.Search"
	MethodStatus = "SearchService.Status"
)

// RegisterRPC exposes search and status on srv.
func (h *Handler) RegisterRPC(srv *grpc.Server) {
	srv.Register(MethodSearch, h.rpcSearch)
	srv.Register(MethodStatus, func(ctx context.Context, _ json.RawMessage) (any, error) {
		return h.loader.Status(ctx)
	})
}

func (h *Handler) rpcSearch(ctx context.Context, raw json.RawMessage) (any, error) {
	var req proto.SearchRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidInput, err)
	}
	limit := req.Limit
	if h.maxResults > 0 && (limit <= 0 || limit > h.maxResults) {
		limit = h.maxResults
	}
	res, err := h.searcher.SearchLimit(ctx, req.Query, limit)
	if err != nil {
		return nil, err
	}
	if h.tracker != nil {
		h.tracker.Track(analytics.NewSearchEvent(res, analytics.SourceRPC, time.Now()))
	}
	return ToResponse(res), nil
}
