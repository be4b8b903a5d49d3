package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*EmbeddingCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewEmbeddingCache(client, time.Minute), mr
}

func TestEmbeddingCacheRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	vector := []float32{0.1, -0.2, 0.3}

	_, found, err := cache.Get(ctx, "test-model", "hello world")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, cache.Set(ctx, "test-model", "hello world", vector))

	got, found, err := cache.Get(ctx, "test-model", "hello world")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, vector, got)
}

func TestEmbeddingCacheKeyIncludesModel(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "model-a", "same text", []float32{1}))

	_, found, err := cache.Get(ctx, "model-b", "same text")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestEmbeddingCacheExpiry(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "test-model", "hello", []float32{1, 2}))
	mr.FastForward(2 * time.Minute)

	_, found, err := cache.Get(ctx, "test-model", "hello")
	require.NoError(t, err)
	assert.False(t, found)
}
