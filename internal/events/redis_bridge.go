package events

import (
	"context"

	"civicdesk/backend/internal/models"
	"civicdesk/backend/internal/storage"

	"go.uber.org/zap"
)

// RedisBridge publishes events through Redis so every API instance's hub
// receives them, including the one that produced them.
type RedisBridge struct {
	redis  *storage.RedisService
	hub    *Hub
	logger *zap.Logger
}

// NewRedisBridge connects hub to the Redis event channel.
func NewRedisBridge(redis *storage.RedisService, hub *Hub, logger *zap.Logger) *RedisBridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBridge{redis: redis, hub: hub, logger: logger}
}

// Publish sends ev to Redis.
func (b *RedisBridge) Publish(ctx context.Context, ev models.ComplaintEvent) error {
	return b.redis.PublishEvent(ctx, ev)
}

// Listen forwards Redis events into the hub until ctx is cancelled.
func (b *RedisBridge) Listen(ctx context.Context) {
	sub := b.redis.SubscribeEvents(ctx)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			ev, err := storage.DecodeEvent(msg.Payload)
			if err != nil {
				b.logger.Warn("undecodable event on redis", zap.Error(err))
				continue
			}
			if err := b.hub.Publish(ctx, ev); err != nil {
				return
			}
		}
	}
}
