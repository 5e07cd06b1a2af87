// Package fetch retrieves resource text from the origin: HTTP(S) URLs, or
// local files for sites served from disk.
package fetch

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/errors"
)

// Fetcher returns the body of the resource at rawURL. Every failure wraps
// apperrors.ErrFetch.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// Func adapts a function to Fetcher.
type Func func(ctx context.Context, rawURL string) (string, error)

func (f Func) Fetch(ctx context.Context, rawURL string) (string, error) { return f(ctx, rawURL) }

// Mux sends http and https URLs to HTTP and everything else to File.
type Mux struct {
	HTTP Fetcher
	File Fetcher
}

func (m *Mux) Fetch(ctx context.Context, rawURL string) (string, error) {
	if isHTTP(rawURL) {
		return m.HTTP.Fetch(ctx, rawURL)
	}
	return m.File.Fetch(ctx, rawURL)
}

// Resolve joins path onto base. Absolute URLs in path win. A base without an
// http(s) or file scheme is treated as a directory on disk.
func Resolve(base, path string) (string, error) {
	if u, err := url.Parse(path); err == nil && len(u.Scheme) > 1 {
		return path, nil
	}
	if isHTTP(base) || strings.HasPrefix(base, "file:") {
		b, err := url.Parse(base)
		if err != nil {
			return "", fmt.Errorf("%w: base url %q: %w", apperrors.ErrInvalidInput, base, err)
		}
		if !strings.HasSuffix(b.Path, "/") {
			b.Path += "/"
		}
		ref, err := url.Parse(path)
		if err != nil {
			return "", fmt.Errorf("%w: resource path %q: %w", apperrors.ErrInvalidInput, path, err)
		}
		return b.ResolveReference(ref).String(), nil
	}
	if filepath.IsAbs(path) {
		return path, nil
	}
	return filepath.Join(base, filepath.FromSlash(path)), nil
}

func isHTTP(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
