package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"PollutionSync/internal/domain"
	"PollutionSync/internal/ports"
)

const defaultKeyPrefix = "pollutionsync:cache:"

// RedisCache shares pollution pages between processes through Redis.
// Keys carry no Redis expiry; staleness is judged by the caller from CapturedAt.
type RedisCache struct {
	client *redis.Client
	prefix string
}

var _ ports.ResponseCache = (*RedisCache)(nil)

type redisEntry struct {
	Page       domain.PollutionPage `json:"page"`
	CapturedAt time.Time            `json:"captured_at"`
}

// NewRedisClient parses redisURL and verifies connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewRedisCache wraps an existing client; prefix defaults to "pollutionsync:cache:".
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisCache{client: client, prefix: prefix}
}

// Get loads and decodes the entry under key.
func (c *RedisCache) Get(ctx context.Context, key string) (ports.CachedPage, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ports.CachedPage{}, false, nil
	}
	if err != nil {
		return ports.CachedPage{}, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	entry, err := decodeEntry(raw)
	if err != nil {
		return ports.CachedPage{}, false, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return entry, true, nil
}

// Set encodes and stores entry under key.
func (c *RedisCache) Set(ctx context.Context, key string, entry ports.CachedPage) error {
	raw, err := encodeEntry(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	if err := c.client.Set(ctx, c.prefix+key, raw, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func encodeEntry(entry ports.CachedPage) ([]byte, error) {
	return json.Marshal(redisEntry{Page: entry.Page, CapturedAt: entry.CapturedAt})
}

func decodeEntry(raw []byte) (ports.CachedPage, error) {
	var stored redisEntry
	if err := json.Unmarshal(raw, &stored); err != nil {
		return ports.CachedPage{}, err
	}
	return ports.CachedPage{Page: stored.Page, CapturedAt: stored.CapturedAt}, nil
}
