package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of *redis.Client used by Redis (for testing).
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Redis stores JSON-encoded values with native key expiry so several
// instances can share warm listings. Redis errors degrade to cache misses.
type Redis[V any] struct {
	client RedisClient
	prefix string
	logger *slog.Logger
}

func NewRedis[V any](client RedisClient, prefix string, logger *slog.Logger) *Redis[V] {
	return &Redis[V]{
		client: client,
		prefix: prefix,
		logger: logger.With("component", "redis_cache"),
	}
}

func (r *Redis[V]) Get(ctx context.Context, key string) (V, bool) {
	var value V

	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("cache read failed", "key", key, "error", err)
		}
		return value, false
	}

	if err := json.Unmarshal(data, &value); err != nil {
		r.logger.Warn("cache entry undecodable", "key", key, "error", err)
		var zero V
		return zero, false
	}
	return value, true
}

func (r *Redis[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		r.logger.Error("failed to encode cache entry", "key", key, "error", err)
		return
	}
	if err := r.client.Set(ctx, r.prefix+key, data, ttl).Err(); err != nil {
		r.logger.Warn("cache write failed", "key", key, "error", err)
	}
}
