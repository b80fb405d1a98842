// Package redis provides a rank cache shared across instances via Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const defaultPrefix = "trafficpeek:rank"

// Config controls the Redis connection and key layout.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// RankCache stores ranks as plain integers with a Redis-side expiry.
type RankCache struct {
	rdb    goredis.Cmdable
	prefix string
	ttl    time.Duration
	close  func() error
}

// New dials Redis and verifies the connection with PING.
func New(ctx context.Context, cfg Config) (*RankCache, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, fmt.Errorf("cache.redis.addr is required")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	cache := NewWithClient(client, cfg.Prefix, cfg.TTL)
	cache.close = client.Close
	return cache, nil
}

// NewWithClient wraps an existing client (primarily for testing).
func NewWithClient(rdb goredis.Cmdable, prefix string, ttl time.Duration) *RankCache {
	prefix = strings.Trim(prefix, ":")
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &RankCache{rdb: rdb, prefix: prefix, ttl: ttl}
}

// GetRank returns the cached rank, if any.
func (c *RankCache) GetRank(ctx context.Context, domain string) (int, bool, error) {
	val, err := c.rdb.Get(ctx, c.key(domain)).Result()
	if errors.Is(err, goredis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis get rank: %w", err)
	}
	rank, err := strconv.Atoi(val)
	if err != nil || rank <= 0 {
		return 0, false, fmt.Errorf("redis rank for %s is malformed: %q", domain, val)
	}
	return rank, true, nil
}

// SetRank stores rank with the configured TTL.
func (c *RankCache) SetRank(ctx context.Context, domain string, rank int) error {
	if err := c.rdb.Set(ctx, c.key(domain), rank, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set rank: %w", err)
	}
	return nil
}

// Close releases the connection when New created it.
func (c *RankCache) Close() error {
	if c == nil || c.close == nil {
		return nil
	}
	return c.close()
}

func (c *RankCache) key(domain string) string {
	return c.prefix + ":" + domain
}
