package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"visitproof/internal/stamps/models"
)

// Cache holds the public list of active locations. Collected flags are
// per-holder and never cached.
type Cache interface {
	Get(ctx context.Context) ([]models.CatalogLocation, bool, error)
	Set(ctx context.Context, locations []models.CatalogLocation) error
	Invalidate(ctx context.Context) error
}

const redisCatalogKey = "visitproof:catalog:active"

// RedisCache shares the catalog across instances.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context) ([]models.CatalogLocation, bool, error) {
	raw, err := c.client.Get(ctx, redisCatalogKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get catalog: %w", err)
	}
	var locations []models.CatalogLocation
	if err := json.Unmarshal(raw, &locations); err != nil {
		// A stale or foreign payload is a miss; the next Set overwrites it.
		return nil, false, nil //nolint:nilerr // treated as cache miss
	}
	return locations, true, nil
}

func (c *RedisCache) Set(ctx context.Context, locations []models.CatalogLocation) error {
	raw, err := json.Marshal(locations)
	if err != nil {
		return fmt.Errorf("marshal catalog: %w", err)
	}
	if err := c.client.Set(ctx, redisCatalogKey, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("set catalog: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, redisCatalogKey).Err(); err != nil {
		return fmt.Errorf("invalidate catalog: %w", err)
	}
	return nil
}

// MemoryCache is the single-instance fallback when Redis is not configured.
type MemoryCache struct {
	mu        sync.RWMutex
	ttl       time.Duration
	now       func() time.Time
	locations []models.CatalogLocation
	expiresAt time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl, now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context) ([]models.CatalogLocation, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.locations == nil || !c.now().Before(c.expiresAt) {
		return nil, false, nil
	}
	out := make([]models.CatalogLocation, len(c.locations))
	copy(out, c.locations)
	return out, true, nil
}

func (c *MemoryCache) Set(_ context.Context, locations []models.CatalogLocation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.locations = make([]models.CatalogLocation, len(locations))
	copy(c.locations, locations)
	c.expiresAt = c.now().Add(c.ttl)
	return nil
}

func (c *MemoryCache) Invalidate(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.locations = nil
	return nil
}
