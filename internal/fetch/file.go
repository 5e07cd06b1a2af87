package fetch

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/errors"
)

// File reads resources from the local filesystem. It accepts plain paths
// and file:// URLs.
type File struct{}

func (File) Fetch(ctx context.Context, rawURL string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", apperrors.ErrFetch, err)
	}
	path := rawURL
	if strings.HasPrefix(rawURL, "file:") {
		u, err := url.Parse(rawURL)
		if err != nil {
			return "", fmt.Errorf("%w: %q: %w", apperrors.ErrFetch, rawURL, err)
		}
		path = u.Path
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", apperrors.ErrFetch, err)
	}
	return string(data), nil
}
