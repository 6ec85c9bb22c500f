package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"civicdesk/backend/internal/config"
	"civicdesk/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventsChannel is the pub/sub channel carrying committed complaint events.
const EventsChannel = "complaints:events"

const revokedPrefix = "revoked:"

// RedisService holds the Redis-backed side channels: event fan-out, token
// revocation and the dashboard cache.
type RedisService struct {
	Client *redis.Client
	logger *zap.Logger
}

var _ TokenRevoker = (*RedisService)(nil)

// NewRedisClient builds a client from configuration without connecting.
func NewRedisClient(cfg config.Redis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// NewRedisService wraps a client.
func NewRedisService(client *redis.Client, logger *zap.Logger) *RedisService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisService{Client: client, logger: logger}
}

// Ping checks the connection.
func (r *RedisService) Ping(ctx context.Context) error {
	if err := r.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// PublishEvent sends a committed event to every API instance.
func (r *RedisService) PublishEvent(ctx context.Context, ev models.ComplaintEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return r.Client.Publish(ctx, EventsChannel, payload).Err()
}

// SubscribeEvents subscribes to the event channel. The caller closes the subscription.
func (r *RedisService) SubscribeEvents(ctx context.Context) *redis.PubSub {
	return r.Client.Subscribe(ctx, EventsChannel)
}

// DecodeEvent parses a pub/sub payload.
func DecodeEvent(payload string) (models.ComplaintEvent, error) {
	var ev models.ComplaintEvent
	err := json.Unmarshal([]byte(payload), &ev)
	return ev, err
}

// RevokeToken stores the token id until the token would have expired anyway.
func (r *RedisService) RevokeToken(ctx context.Context, tokenID string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return r.Client.Set(ctx, revokedPrefix+tokenID, "1", ttl).Err()
}

// IsTokenRevoked checks the revocation list.
func (r *RedisService) IsTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	_, err := r.Client.Get(ctx, revokedPrefix+tokenID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetJSON decodes a cached value into dst and reports whether it was present.
func (r *RedisService) GetJSON(ctx context.Context, key string, dst interface{}) (bool, error) {
	raw, err := r.Client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		r.logger.Warn("dropping undecodable cache entry", zap.String("key", key), zap.Error(err))
		return false, nil
	}
	return true, nil
}

// SetJSON caches v under key for ttl.
func (r *RedisService) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.Client.Set(ctx, key, raw, ttl).Err()
}

// Delete removes cache keys.
func (r *RedisService) Delete(ctx context.Context, keys ...string) error {
	return r.Client.Del(ctx, keys...).Err()
}
