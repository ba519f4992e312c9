package api

import (
	"context"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Broadcaster signals other instances that the document changed.
type Broadcaster interface {
	Broadcast(ctx context.Context)
}

// RedisBroadcaster publishes an invalidation message on a redis channel
// after every committed mutation. Clients subscribed to the channel refresh
// instead of waiting out their poll interval.
type RedisBroadcaster struct {
	client  *redis.Client
	channel string
	logger  *log.Logger
}

func NewRedisBroadcaster(client *redis.Client, channel string, logger *log.Logger) *RedisBroadcaster {
	return &RedisBroadcaster{client: client, channel: channel, logger: logger}
}

// Broadcast is best-effort: a missed signal only delays the next poll.
func (b *RedisBroadcaster) Broadcast(ctx context.Context) {
	if err := b.client.Publish(ctx, b.channel, "updated").Err(); err != nil {
		b.logger.WithField("error", err.Error()).Debug("invalidation publish failed")
	}
}
