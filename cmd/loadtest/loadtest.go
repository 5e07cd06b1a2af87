package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Limit       int
	Queries     []string
}

// Stats accumulates request outcomes from every worker.
type Stats struct {
	mu          sync.Mutex
	latencies   []time.Duration
	statusCodes map[int]int64
	transport   int64
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]int64),
	}
}

// Record notes one request. A non-nil err is a transport failure.
func (s *Stats) Record(d time.Duration, status int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.transport++
		return
	}
	s.latencies = append(s.latencies, d)
	s.statusCodes[status]++
}

// Run issues searches until ctx is done. A nil client uses a pooled client
// sized for cfg.Concurrency.
func Run(ctx context.Context, cfg Config, client *http.Client) *Stats {
	if client == nil {
		client = &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        cfg.Concurrency * 2,
				MaxIdleConnsPerHost: cfg.Concurrency * 2,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	stats := NewStats()
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.Concurrency; w++ {
		g.Go(func() error {
			for i := w; ctx.Err() == nil; i++ {
				target := fmt.Sprintf("%s/api/v1/search?q=%s&limit=%d",
					cfg.BaseURL, url.QueryEscape(cfg.Queries[i%len(cfg.Queries)]), cfg.Limit)
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
				if err != nil {
					return err
				}
				start := time.Now()
				resp, err := client.Do(req)
				if err != nil {
					if ctx.Err() == nil {
						stats.Record(time.Since(start), 0, err)
					}
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				stats.Record(time.Since(start), resp.StatusCode, nil)
			}
			return nil
		})
	}
	g.Wait()
	return stats
}

// Report summarizes Stats.
type Report struct {
	Total       int64
	Success     int64
	NotReady    int64
	Errors      int64
	RPS         float64
	Min, Max    time.Duration
	Avg, StdDev time.Duration
	P50, P90    time.Duration
	P95, P99    time.Duration
	StatusCodes map[int]int64
}

func (s *Stats) Report(elapsed time.Duration) Report {
	s.mu.Lock()
	latencies := append([]time.Duration(nil), s.latencies...)
	r := Report{StatusCodes: make(map[int]int64, len(s.statusCodes)), Errors: s.transport}
	for code, n := range s.statusCodes {
		r.StatusCodes[code] = n
		switch {
		case code >= 200 && code < 300:
			r.Success += n
		case code == http.StatusServiceUnavailable:
			r.NotReady += n
			r.Errors += n
		default:
			r.Errors += n
		}
	}
	s.mu.Unlock()

	r.Total = r.Success + r.Errors
	if elapsed > 0 {
		r.RPS = float64(r.Total) / elapsed.Seconds()
	}
	if len(latencies) == 0 {
		return r
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	r.Avg = sum / time.Duration(len(latencies))
	var sq float64
	for _, l := range latencies {
		diff := float64(l - r.Avg)
		sq += diff * diff
	}
	r.StdDev = time.Duration(math.Sqrt(sq / float64(len(latencies))))
	r.Min, r.Max = latencies[0], latencies[len(latencies)-1]
	r.P50 = percentile(latencies, 50)
	r.P90 = percentile(latencies, 90)
	r.P95 = percentile(latencies, 95)
	r.P99 = percentile(latencies, 99)
	return r
}

func (r Report) Print(w io.Writer) {
	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total Requests:  %d\n", r.Total)
	fmt.Fprintf(w, "Successful:      %d\n", r.Success)
	fmt.Fprintf(w, "Errors:          %d (index loading: %d)\n", r.Errors, r.NotReady)
	if r.Total > 0 {
		fmt.Fprintf(w, "Error Rate:      %.2f%%\n", float64(r.Errors)/float64(r.Total)*100)
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", r.RPS)
	}
	if r.Max > 0 {
		fmt.Fprintln(w, "\n=== Latency ===")
		fmt.Fprintf(w, "Min:    %s\n", r.Min)
		fmt.Fprintf(w, "Avg:    %s\n", r.Avg)
		fmt.Fprintf(w, "P50:    %s\n", r.P50)
		fmt.Fprintf(w, "P90:    %s\n", r.P90)
		fmt.Fprintf(w, "P95:    %s\n", r.P95)
		fmt.Fprintf(w, "P99:    %s\n", r.P99)
		fmt.Fprintf(w, "Max:    %s\n", r.Max)
		fmt.Fprintf(w, "StdDev: %s\n", r.StdDev)
	}
	fmt.Fprintln(w, "\n=== Status Codes ===")
	codes := make([]int, 0, len(r.StatusCodes))
	for code := range r.StatusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "  %d: %d\n", code, r.StatusCodes[code])
	}
}

// percentile uses the nearest-rank method.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
