// Package cache provides a JSON key-value cache backed by Redis with an
// in-process fallback used when Redis is unreachable.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Client stores JSON-serialized values in Redis. On the first remote failure
// it degrades to an in-process map for the rest of the process lifetime;
// fallback entries do not expire. A nil Redis client starts degraded.
type Client struct {
	rdb    *redis.Client
	logger *zap.Logger

	mu          sync.Mutex
	fallback    map[string][]byte
	unavailable bool
}

// New creates a cache client. rdb may be nil when no Redis is configured.
func New(rdb *redis.Client, logger *zap.Logger) *Client {
	c := &Client{
		rdb:      rdb,
		logger:   logger.Named("cache"),
		fallback: make(map[string][]byte),
	}
	if rdb == nil {
		c.unavailable = true
	}
	return c
}

// GetJSON looks up key and unmarshals the stored value into dest, reporting
// whether the key was found. Remote failures degrade to the fallback map and
// are never returned; the only error surface is a decode failure.
func (c *Client) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	data, ok := c.get(ctx, key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON serializes value and stores it under key with the given TTL. Remote
// failures switch the client to the fallback map; the write still succeeds.
func (c *Client) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}

	if c.degraded() {
		c.storeFallback(key, data)
		return nil
	}

	if err := c.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		c.markUnavailable(err)
		c.storeFallback(key, data)
	}
	return nil
}

func (c *Client) get(ctx context.Context, key string) ([]byte, bool) {
	if c.degraded() {
		return c.loadFallback(key)
	}

	data, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, false
	case err != nil:
		c.markUnavailable(err)
		return c.loadFallback(key)
	}
	return data, true
}

func (c *Client) degraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unavailable
}

func (c *Client) markUnavailable(err error) {
	c.mu.Lock()
	already := c.unavailable
	c.unavailable = true
	c.mu.Unlock()

	if !already {
		c.logger.Warn("redis unavailable, switching to in-memory fallback", zap.Error(err))
	}
}

func (c *Client) storeFallback(key string, data []byte) {
	c.mu.Lock()
	c.fallback[key] = data
	c.mu.Unlock()
}

func (c *Client) loadFallback(key string) ([]byte, bool) {
	c.mu.Lock()
	data, ok := c.fallback[key]
	c.mu.Unlock()
	return data, ok
}
