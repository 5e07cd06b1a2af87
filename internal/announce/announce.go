// Package announce validates a freshly built index and tells running search
// services about it on the index-published topic, so they reload instead of
// waiting for their cached copy to expire.
package announce

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/static-site-search/internal/fetch"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/internal/index"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/internal/loader"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/proto"
)

// Publisher sends one event, normally a *kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

type Announcer struct {
	fetcher   fetch.Fetcher
	resources []loader.Resource
	publisher Publisher
	logger    *slog.Logger
}

func New(f fetch.Fetcher, resources []loader.Resource, p Publisher) *Announcer {
	return &Announcer{
		fetcher:   f,
		resources: resources,
		publisher: p,
		logger:    slog.Default().With("component", "announce"),
	}
}

// Announce fetches every resource, checks that they unpack into an index and
// publishes an IndexPublished event keyed by baseURL. The version is a
// content hash of the resources, so republishing an unchanged build yields
// the same version.
func (a *Announcer) Announce(ctx context.Context, baseURL string) (*proto.IndexPublished, error) {
	bodies := make(source, len(a.resources))
	h := sha256.New()
	for _, r := range a.resources {
		body, err := a.fetcher.Fetch(ctx, r.URL)
		if err != nil {
			return nil, fmt.Errorf("fetching %s: %w", r.Key, err)
		}
		bodies[r.Key] = body
		fmt.Fprintf(h, "%s\x00%d\x00", r.Key, len(body))
		h.Write([]byte(body))
	}
	snap, err := index.Unpack(ctx, bodies)
	if err != nil {
		return nil, fmt.Errorf("validating index: %w", err)
	}

	event := &proto.IndexPublished{
		BaseURL:     baseURL,
		Version:     hex.EncodeToString(h.Sum(nil))[:16],
		PublishedAt: time.Now().UnixMilli(),
	}
	if err := a.publisher.Publish(ctx, kafka.Event{Key: baseURL, Value: event}); err != nil {
		return nil, fmt.Errorf("publishing index %s: %w", event.Version, err)
	}
	a.logger.Info("index announced",
		"base_url", baseURL,
		"version", event.Version,
		"terms", len(snap.Terms),
		"documents", len(snap.URLs),
	)
	return event, nil
}

type source map[string]string

func (s source) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := s[key]
	return v, ok, nil
}
