// Command sitesearch loads a site's search index into the local cache and
// prints the results for one query or deep link.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/static-site-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/internal/announce"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/internal/deeplink"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/internal/service"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/logger"
)

func main() {
	os.Exit(realMain(os.Args[1:], os.Stdout, os.Stderr))
}

// realMain runs the command and returns its exit code, so deferred cleanup
// finishes before the process exits.
func realMain(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sitesearch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to config file")
	base := fs.String("base", "", "site base URL or directory holding index.json and index_urls.json")
	query := fs.String("q", "", "search query")
	link := fs.String("link", "", "deep link (#q=... or a full URL) to replay instead of -q")
	store := fs.String("store", "", "store backend: memory, sqlite, redis, postgres")
	limit := fs.Int("limit", 10, "maximum results to print (0 for all)")
	asJSON := fs.Bool("json", false, "print the full result as JSON")
	announceBuild := fs.Bool("announce", false, "validate the index at -base and announce it on the index-published topic")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return 1
	}
	if *base != "" {
		cfg.Resources.BaseURL = *base
	}
	if *store != "" {
		cfg.Store.Backend = *store
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "invalid configuration: %v\n", err)
		return 2
	}
	logger.SetupWriter(stderr, cfg.Logging.Level, "text")

	if *link != "" {
		q, ok := deeplink.Parse(*link)
		if !ok {
			fmt.Fprintf(stderr, "not a search link: %q\n", *link)
			return 2
		}
		*query = q
	}
	if *query == "" && fs.NArg() > 0 {
		*query = fs.Arg(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *announceBuild {
		return announceIndex(ctx, cfg, stdout)
	}
	return run(ctx, cfg, stdout, *query, *limit, *asJSON)
}

func announceIndex(ctx context.Context, cfg *config.Config, stdout io.Writer) int {
	if len(cfg.Kafka.Brokers) == 0 {
		slog.Error("kafka.brokers is required to announce an index")
		return 2
	}
	svc, err := service.New(cfg, nil)
	if err != nil {
		slog.Error("failed to build search pipeline", "error", err)
		return 1
	}
	defer svc.Close()

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexPublished)
	defer producer.Close()
	event, err := announce.New(svc.Fetcher, svc.Resources(), producer).Announce(ctx, cfg.Resources.BaseURL)
	if err != nil {
		slog.Error("announce failed", "error", err)
		return 1
	}
	fmt.Fprintf(stdout, "announced %s version %s\n", event.BaseURL, event.Version)
	return 0
}

func run(ctx context.Context, cfg *config.Config, stdout io.Writer, query string, limit int, asJSON bool) int {
	svc, err := service.New(cfg, nil)
	if err != nil {
		slog.Error("failed to build search pipeline", "error", err)
		return 1
	}
	defer svc.Close()

	if err := svc.Loader.Load(ctx); err != nil {
		slog.Error("failed to load index", "base_url", cfg.Resources.BaseURL, "error", err)
		return 1
	}
	res, err := svc.Engine.SearchLimit(ctx, query, limit)
	if err != nil {
		slog.Error("search failed", "query", query, "error", err)
		return 1
	}
	slog.Debug("search completed", "event", analytics.NewSearchEvent(res, analytics.SourceCLI, time.Now()))

	if asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(handler.ToResponse(res)); err != nil {
			slog.Error("failed to write result", "error", err)
			return 1
		}
		return 0
	}
	if res.NoResults {
		fmt.Fprintln(stdout, "No results found.")
		return 0
	}
	for i, r := range res.Results {
		fmt.Fprintf(stdout, "%d. %s (%d)\n   %s\n", i+1, r.Title, r.Score, r.URL)
		if r.Summary != "" {
			fmt.Fprintf(stdout, "   %s\n", r.Summary)
		}
	}
	fmt.Fprintf(stdout, "\nShare: %s\n", deeplink.Fragment(query))
	return 0
}
