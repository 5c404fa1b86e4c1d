package cache

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"digiprofile/api/internal/util"
)

const DefaultChannel = "profile:dataset-invalidated"

// Bus publishes dataset invalidations and relays those of peer instances.
// Messages are "<origin>|<dataset>"; an instance ignores its own.
type Bus struct {
	client  *redis.Client
	channel string
	origin  string
	logger  *zap.Logger
}

func NewBus(client *redis.Client, channel string, logger *zap.Logger) *Bus {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{client: client, channel: channel, origin: util.NewID("node"), logger: logger}
}

func (b *Bus) Publish(ctx context.Context, dataset string) error {
	if err := b.client.Publish(ctx, b.channel, b.origin+"|"+dataset).Err(); err != nil {
		return fmt.Errorf("publish invalidation: %w", err)
	}
	return nil
}

// Run subscribes and calls onInvalidate for every peer message until ctx is
// done. The subscription is confirmed before Run starts listening, so a
// publish issued after ready is closed is never missed.
func (b *Bus) Run(ctx context.Context, ready chan<- struct{}, onInvalidate func(dataset string)) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	if ready != nil {
		close(ready)
	}

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			origin, dataset, found := strings.Cut(msg.Payload, "|")
			if !found || dataset == "" {
				b.logger.Warn("malformed invalidation message", zap.String("payload", msg.Payload))
				continue
			}
			if origin == b.origin {
				continue
			}
			b.logger.Debug("peer invalidated dataset", zap.String("dataset", dataset), zap.String("origin", origin))
			onInvalidate(dataset)
		}
	}
}
