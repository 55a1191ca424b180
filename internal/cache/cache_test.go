package cache_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexfold/alchemy-api/internal/cache"
)

// runResultCacheContract exercises the behavior every ResultCache
// implementation must share.
func runResultCacheContract(t *testing.T, newCache func(t *testing.T) cache.ResultCache) {
	ctx := context.Background()

	t.Run("get after put observes the written value", func(t *testing.T) {
		c := newCache(t)
		value := json.RawMessage(`{"text":"bonjour"}`)

		require.NoError(t, c.Put(ctx, "fp-1", value, map[string]string{"language": "fr"}))

		entry, hit, err := c.Get(ctx, "fp-1")
		require.NoError(t, err)
		require.True(t, hit)
		assert.JSONEq(t, string(value), string(entry.Value))
		assert.Equal(t, "fr", entry.Metadata["language"])
		assert.False(t, entry.CreatedAt.IsZero())
	})

	t.Run("miss has no side effects", func(t *testing.T) {
		c := newCache(t)

		entry, hit, err := c.Get(ctx, "absent")
		require.NoError(t, err)
		assert.False(t, hit)
		assert.Nil(t, entry)

		// Still a miss on the second read.
		_, hit, err = c.Get(ctx, "absent")
		require.NoError(t, err)
		assert.False(t, hit)
	})

	t.Run("last write wins on the same key", func(t *testing.T) {
		c := newCache(t)

		require.NoError(t, c.Put(ctx, "fp-2", json.RawMessage(`{"v":1}`), nil))
		require.NoError(t, c.Put(ctx, "fp-2", json.RawMessage(`{"v":2}`), nil))

		entry, hit, err := c.Get(ctx, "fp-2")
		require.NoError(t, err)
		require.True(t, hit)
		assert.JSONEq(t, `{"v":2}`, string(entry.Value))
	})

	t.Run("invalidate removes a single entry", func(t *testing.T) {
		c := newCache(t)

		require.NoError(t, c.Put(ctx, "fp-3", json.RawMessage(`{}`), nil))
		require.NoError(t, c.Put(ctx, "fp-4", json.RawMessage(`{}`), nil))
		require.NoError(t, c.Invalidate(ctx, "fp-3"))

		_, hit, err := c.Get(ctx, "fp-3")
		require.NoError(t, err)
		assert.False(t, hit)

		_, hit, err = c.Get(ctx, "fp-4")
		require.NoError(t, err)
		assert.True(t, hit)

		// Invalidating an absent key is not an error.
		assert.NoError(t, c.Invalidate(ctx, "fp-3"))
	})

	t.Run("cleanup spares fresh entries", func(t *testing.T) {
		c := newCache(t)

		require.NoError(t, c.Put(ctx, "fp-5", json.RawMessage(`{}`), nil))

		stats, err := c.Cleanup(ctx, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 0, stats.Deleted)

		_, hit, err := c.Get(ctx, "fp-5")
		require.NoError(t, err)
		assert.True(t, hit)
	})

	t.Run("cleanup removes aged entries", func(t *testing.T) {
		c := newCache(t)

		require.NoError(t, c.Put(ctx, "fp-6", json.RawMessage(`{}`), nil))

		// Everything just written is older than a zero max age after a beat.
		time.Sleep(5 * time.Millisecond)
		stats, err := c.Cleanup(ctx, 0)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, stats.Scanned, 1)
		assert.GreaterOrEqual(t, stats.Deleted, 1)

		_, hit, err := c.Get(ctx, "fp-6")
		require.NoError(t, err)
		assert.False(t, hit)
	})
}

func TestMemoryCache(t *testing.T) {
	runResultCacheContract(t, func(t *testing.T) cache.ResultCache {
		return cache.NewMemoryCache()
	})
}

func TestRedisCache(t *testing.T) {
	runResultCacheContract(t, func(t *testing.T) cache.ResultCache {
		mr := miniredis.RunT(t)
		c, err := cache.NewRedisCache(context.Background(), mr.Addr(), slog.Default())
		require.NoError(t, err)
		t.Cleanup(func() { _ = c.Close() })
		return c
	})
}

func TestRedisCacheUnavailable(t *testing.T) {
	ctx := context.Background()

	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCache(ctx, mr.Addr(), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	// Simulate the backend going away after startup.
	mr.Close()

	_, _, err = c.Get(ctx, "fp-1")
	assert.ErrorIs(t, err, cache.ErrUnavailable)

	err = c.Put(ctx, "fp-1", json.RawMessage(`{}`), nil)
	assert.ErrorIs(t, err, cache.ErrUnavailable)
}

func TestRedisCacheConnectFailure(t *testing.T) {
	_, err := cache.NewRedisCache(context.Background(), "127.0.0.1:1", slog.Default())
	assert.Error(t, err)
}

func TestJanitor(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemoryCache()

	require.NoError(t, c.Put(ctx, "fp-old", json.RawMessage(`{}`), nil))

	j := cache.NewJanitor(c, 0, 10*time.Millisecond, slog.Default())
	j.Start()
	defer j.Stop()

	assert.Eventually(t, func() bool {
		return c.Len() == 0
	}, time.Second, 5*time.Millisecond)
}
