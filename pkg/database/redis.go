package database

import (
	"fmt"
	"net"

	"github.com/redis/go-redis/v9"

	"github.com/isaqe-io/isaqe-engine/pkg/config"
)

// NewRedisClient creates the Redis client backing the schema cache.
// Returns nil if Redis is not configured (url is empty); the cache then runs
// on its in-memory fallback from the start. Connectivity is not probed here:
// the cache downgrades itself on the first failing operation.
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if host, port, splitErr := net.SplitHostPort(opts.Addr); splitErr == nil {
		opts.Addr = net.JoinHostPort(config.ResolveHostForDocker(host), port)
	}

	return redis.NewClient(opts), nil
}
