// Package cache is the shared Redis cache for content pages and API tokens.
// Entries are only ever written whole with a TTL.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"NotifyAdmin/internal/metrics"
)

type Cache struct {
	rdb     *redis.Client
	timeout time.Duration
	log     *zap.Logger
}

// Connect parses a redis:// URL and checks the server answers.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func New(rdb *redis.Client, timeout time.Duration, log *zap.Logger) *Cache {
	return &Cache{rdb: rdb, timeout: timeout, log: log.Named("cache")}
}

func (c *Cache) ctx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// Get returns the value under key. A miss is not an error.
func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	val, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		metrics.RecordCacheLookup(cacheName(key), false)
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache get %s: %w", cacheName(key), err)
	}
	metrics.RecordCacheLookup(cacheName(key), true)
	return val, true, nil
}

// Set stores value with SET EX.
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("cache set %s: ttl must be positive", cacheName(key))
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", cacheName(key), err)
	}
	return nil
}

func (c *Cache) Ping(ctx context.Context) error {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}

// cacheName is the key prefix, used as a metrics label.
func cacheName(key string) string {
	name, _, _ := strings.Cut(key, ":")
	return name
}
