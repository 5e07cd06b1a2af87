package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/resilience"
)

// maxBody caps a single resource; real indexes are a few MB.
const maxBody = 256 << 20

// Options configures HTTP. Zero values mean: default client, no timeout,
// a single attempt.
type Options struct {
	Client   *http.Client
	Timeout  time.Duration
	Attempts int
	Breaker  resilience.CircuitBreakerConfig
	Metrics  *metrics.Metrics
}

// HTTP fetches over HTTP(S) behind a circuit breaker, with optional retry and
// per-attempt timeout.
type HTTP struct {
	client   *http.Client
	breaker  *resilience.CircuitBreaker
	timeout  time.Duration
	attempts int
	logger   *slog.Logger
}

// statusError is a non-2xx response.
type statusError struct {
	url    string
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.url, e.status)
}

func NewHTTP(opts Options) *HTTP {
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	cb := opts.Breaker
	if opts.Metrics != nil {
		gauge := opts.Metrics.CircuitBreakerState
		cb.OnStateChange = func(name string, s resilience.State) {
			gauge.WithLabelValues(name).Set(float64(s))
		}
		gauge.WithLabelValues("origin").Set(float64(resilience.StateClosed))
	}
	return &HTTP{
		client:   client,
		breaker:  resilience.NewCircuitBreaker("origin", cb),
		timeout:  opts.Timeout,
		attempts: attempts,
		logger:   slog.Default().With("component", "fetch"),
	}
}

// Fetch GETs rawURL and returns the body. 4xx responses and an open circuit
// are not retried.
func (h *HTTP) Fetch(ctx context.Context, rawURL string) (string, error) {
	var body string
	err := resilience.Retry(ctx, "fetch "+rawURL, resilience.RetryConfig{
		MaxAttempts: h.attempts,
		Retryable:   retryable,
	}, func() error {
		return h.breaker.Execute(func() error {
			return resilience.WithTimeout(ctx, h.timeout, "fetch "+rawURL, func(ctx context.Context) error {
				var err error
				body, err = h.get(ctx, rawURL)
				return err
			})
		})
	})
	if err != nil {
		h.logger.Warn("fetch failed", "url", rawURL, "error", err)
		return "", fmt.Errorf("%w: %w", apperrors.ErrFetch, err)
	}
	return body, nil
}

func (h *HTTP) get(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", &statusError{url: rawURL, status: resp.StatusCode}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody+1))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", rawURL, err)
	}
	if len(data) > maxBody {
		return "", fmt.Errorf("%s exceeds %d bytes", rawURL, maxBody)
	}
	return string(data), nil
}

// BreakerState reports the origin circuit breaker state.
func (h *HTTP) BreakerState() resilience.State {
	return h.breaker.GetState()
}

func retryable(err error) bool {
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, context.Canceled) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.status >= 500 || se.status == http.StatusTooManyRequests
	}
	return true
}
