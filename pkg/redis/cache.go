package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache provides typed JSON caching and publishing under a key prefix
// ⭐ SSOT: cache key layout lives here
type Cache struct {
	client *Client
	prefix string
}

// NewCache creates a new cache helper
func NewCache(client *Client, prefix string) *Cache {
	return &Cache{
		client: client,
		prefix: prefix,
	}
}

// Key returns the fully qualified cache key
func (c *Cache) Key(key string) string {
	return fmt.Sprintf("%s:cache:%s", c.prefix, key)
}

// Channel returns the fully qualified pub/sub channel name
func (c *Cache) Channel(name string) string {
	return fmt.Sprintf("%s:events:%s", c.prefix, name)
}

// Get retrieves a cached value; a missing key reports found=false
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !c.client.Enabled() {
		return false, nil
	}

	data, err := c.client.Redis().Get(ctx, c.Key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get failed: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("cache unmarshal failed: %w", err)
	}

	return true, nil
}

// Set stores a value in cache with TTL
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.client.Enabled() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}

	return c.client.Redis().Set(ctx, c.Key(key), data, ttl).Err()
}

// Delete removes cached values
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if !c.client.Enabled() || len(keys) == 0 {
		return nil
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.Key(k)
	}
	return c.client.Redis().Del(ctx, full...).Err()
}

// Publish sends a JSON message to subscribers of a channel
func (c *Cache) Publish(ctx context.Context, channel string, value interface{}) error {
	if !c.client.Enabled() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("publish marshal failed: %w", err)
	}

	return c.client.Redis().Publish(ctx, c.Channel(channel), data).Err()
}

// Predefined TTLs
const (
	TTLShort  = 1 * time.Minute
	TTLMedium = 10 * time.Minute
)

// SessionMetricsKey is where the latest metrics snapshot of a session lives
func SessionMetricsKey(sessionID string) string {
	return fmt.Sprintf("session:%s:metrics", sessionID)
}

// SessionStatusKey is where the latest status of a session lives
func SessionStatusKey(sessionID string) string {
	return fmt.Sprintf("session:%s:status", sessionID)
}

// TicksChannel is the pub/sub channel carrying a session's ticks
func TicksChannel(sessionID string) string {
	return fmt.Sprintf("session:%s:ticks", sessionID)
}
