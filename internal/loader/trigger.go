package loader

import (
	"context"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/proto"
)

// PublishedHandler returns a Kafka handler that force-reloads the index
// when a new build is announced on the index-published topic. Events naming
// a different base URL are ignored. Undecodable messages are logged and
// dropped so one bad record cannot stall the consumer.
func (l *Loader) PublishedHandler(baseURL string) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[proto.IndexPublished](value)
		if err != nil {
			l.logger.Warn("dropping undecodable index-published event", "error", err)
			return nil
		}
		if event.BaseURL != "" && !sameBase(event.BaseURL, baseURL) {
			l.logger.Debug("ignoring index-published event for another site", "base_url", event.BaseURL)
			return nil
		}
		l.logger.Info("index published, reloading", "version", event.Version)
		if err := l.Reload(ctx, true); err != nil {
			l.logger.Error("reload after index-published event failed", "error", err)
		}
		return nil
	}
}

func sameBase(a, b string) bool {
	return strings.TrimSuffix(a, "/") == strings.TrimSuffix(b, "/")
}
