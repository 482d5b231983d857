// Package redis builds the shared go-redis client from configuration.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"visitproof/internal/platform/config"
)

const clientName = "visitproof"

// Client embeds *redis.Client and adds the readiness check. A nil *Client
// means Redis is not configured.
type Client struct {
	*redis.Client
}

// New parses the URL, applies pool and timeout overrides and pings once.
// It returns nil, nil when the URL is empty.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.ClientName = clientName
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Client{Client: client}, nil
}

// Health pings Redis; used by the readiness probe.
func (c *Client) Health(ctx context.Context) error {
	if c == nil || c.Client == nil {
		return errors.New("redis not configured")
	}
	return c.Ping(ctx).Err()
}
