package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visitproof/internal/stamps/models"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	cache := NewMemoryCache(time.Minute)
	cache.now = func() time.Time { return now }

	_, ok, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, []models.CatalogLocation{{ID: "L1"}}))
	got, ok, err := cache.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "L1", got[0].ID)

	got[0].ID = "mutated"
	again, _, _ := cache.Get(ctx)
	assert.Equal(t, "L1", again[0].ID, "callers get a copy")

	now = now.Add(time.Minute)
	_, ok, _ = cache.Get(ctx)
	assert.False(t, ok, "entry expires at ttl")

	require.NoError(t, cache.Set(ctx, []models.CatalogLocation{}))
	_, ok, _ = cache.Get(ctx)
	assert.True(t, ok, "an empty catalog is still a hit")

	require.NoError(t, cache.Invalidate(ctx))
	_, ok, _ = cache.Get(ctx)
	assert.False(t, ok)
}
