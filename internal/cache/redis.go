package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/i474232898/bundlecast/internal/logger"
)

// RedisCache stores JSON-encoded values in Redis. A RedisCache without a
// client misses every read and drops every write.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache connects to the Redis instance at url (redis://...). The
// returned cache is usable even when the ping fails, in which case it
// degrades to a no-op and the error is returned alongside it.
func NewRedisCache(ctx context.Context, url string, attempts int) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return &RedisCache{}, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
ping:
	for i := 0; i < attempts; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		lastErr = client.Ping(pingCtx).Err()
		cancel()
		if lastErr == nil {
			return &RedisCache{client: client, prefix: "bundlecast:"}, nil
		}
		logger.Warn("redis ping failed", "attempt", i+1, "of", attempts, "err", lastErr)
		if i+1 < attempts {
			select {
			case <-ctx.Done():
				break ping
			case <-time.After(time.Second):
			}
		}
	}

	client.Close()
	return &RedisCache{}, fmt.Errorf("redis ping failed after %d attempts: %w", attempts, lastErr)
}

func (s *RedisCache) Available() bool {
	return s.client != nil
}

func (s *RedisCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if s.client == nil {
		return false, nil
	}
	val, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(val, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (s *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if s.client == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+key, data, ttl).Err()
}

func (s *RedisCache) Delete(ctx context.Context, key string) error {
	if s.client == nil {
		return nil
	}
	return s.client.Del(ctx, s.prefix+key).Err()
}

// Health pings Redis; a disabled cache is healthy.
func (s *RedisCache) Health(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Ping(ctx).Err()
}

func (s *RedisCache) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
