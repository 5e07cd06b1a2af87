// Package service assembles the search pipeline from configuration: store,
// fetcher, resource cache, index, engine and loader.
package service

import (
	"fmt"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/static-site-search/internal/fetch"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/internal/index"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/internal/loader"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/internal/rescache"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/internal/searcher/engine"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/metrics"
)

type Service struct {
	Store   storage.Store
	Origin  *fetch.HTTP
	Fetcher fetch.Fetcher
	Cache   *rescache.Cache
	Index   *index.Store
	Engine  *engine.Engine
	Loader  *loader.Loader
	BaseURL string

	resources []loader.Resource
}

// Resources returns the resolved resource list.
func (s *Service) Resources() []loader.Resource {
	return s.resources
}

// New opens the configured store and wires the pipeline around it. A nil m
// disables metrics. The caller must Close the Service.
func New(cfg *config.Config, m *metrics.Metrics) (*Service, error) {
	resources, err := loader.Resources(cfg.Resources)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Store.Backend, err)
	}

	origin := fetch.NewHTTP(fetch.Options{
		Client:   &http.Client{},
		Timeout:  cfg.Resources.FetchTimeout,
		Attempts: cfg.Resources.FetchAttempts,
		Metrics:  m,
	})
	fetcher := &fetch.Mux{HTTP: origin, File: fetch.File{}}
	cache := rescache.New(store, fetcher, rescache.Options{
		Prefix:  cfg.Store.Prefix,
		Expiry:  cfg.Resources.Expiry,
		Metrics: m,
	})
	idx := index.NewStore(m)
	return &Service{
		Store:   store,
		Origin:  origin,
		Fetcher: fetcher,
		Cache:   cache,
		Index:   idx,
		Engine:  engine.New(idx, m),
		Loader:  loader.New(cache, idx, resources, m),
		BaseURL: cfg.Resources.BaseURL,

		resources: resources,
	}, nil
}

func (s *Service) Close() error {
	s.Loader.Close()
	return s.Store.Close()
}
