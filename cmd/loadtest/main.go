// Command loadtest drives GET /api/v1/search on a running searchd with
// concurrent workers and prints throughput, latency and status codes.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

var defaultQueries = []string{
	"getting started",
	"install",
	"configuration",
	"search",
	"deploy static site",
	"templates",
	"themes",
	"running tests",
	"release notes",
	"api reference",
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	limit := flag.Int("limit", 10, "limit parameter sent with each query")
	queriesFile := flag.String("queries", "", "file with one query per line (default: built-in list)")
	flag.Parse()

	queries := defaultQueries
	if *queriesFile != "" {
		f, err := os.Open(*queriesFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "opening queries: %v\n", err)
			os.Exit(1)
		}
		queries, err = readQueries(f)
		f.Close()
		if err != nil || len(queries) == 0 {
			fmt.Fprintf(os.Stderr, "reading queries: no queries (%v)\n", err)
			os.Exit(1)
		}
	}

	cfg := Config{
		BaseURL:     strings.TrimSuffix(*baseURL, "/"),
		Concurrency: *concurrency,
		Duration:    *duration,
		Limit:       *limit,
		Queries:     queries,
	}

	fmt.Println("=== Site Search Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Queries:     %d unique\n", len(cfg.Queries))
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()
	stats := Run(ctx, cfg, nil)
	report := stats.Report(cfg.Duration)
	report.Print(os.Stdout)
	if report.Total == 0 {
		fmt.Println("\nWARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func readQueries(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if q := strings.TrimSpace(sc.Text()); q != "" && !strings.HasPrefix(q, "#") {
			out = append(out, q)
		}
	}
	return out, sc.Err()
}
