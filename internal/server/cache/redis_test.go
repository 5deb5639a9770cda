package cache

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/raymonnguyen/baubiz-sub000/internal/server/repository"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a miniredis server and returns a RedisCache instance
func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { client.Close() })

	return NewRedisCache(client), mr
}

func TestGet_Success(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	items := []repository.Item{
		{ID: "line-1", UserID: "user123", ProductID: "p1", Quantity: 2},
		{ID: "line-2", UserID: "user123", ProductID: "p2", Quantity: 3},
	}
	data, _ := json.Marshal(items)
	mr.Set(cacheKey("user123"), string(data))

	result, err := cache.Get(ctx, "user123")
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, "p1", result[0].ProductID)
	assert.Equal(t, 3, result[1].Quantity)
}

func TestGet_CacheMiss(t *testing.T) {
	cache, _ := setupTestRedis(t)

	result, err := cache.Get(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Nil(t, result)
}

func TestGet_InvalidJSON(t *testing.T) {
	cache, mr := setupTestRedis(t)

	mr.Set(cacheKey("user123"), "{corrupt")

	_, err := cache.Get(context.Background(), "user123")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestSetThenGetRoundtrip(t *testing.T) {
	cache, _ := setupTestRedis(t)
	ctx := context.Background()

	items := []repository.Item{{ID: "line-1", ProductID: "p1", Quantity: 4}}
	require.NoError(t, cache.Set(ctx, "user123", items))

	result, err := cache.Get(ctx, "user123")
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, 4, result[0].Quantity)
}

func TestDelete(t *testing.T) {
	cache, _ := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "user123", []repository.Item{{ID: "line-1"}}))
	require.NoError(t, cache.Delete(ctx, "user123"))

	_, err := cache.Get(ctx, "user123")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestNoopAlwaysMisses(t *testing.T) {
	var cache Noop
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "user123", []repository.Item{{ID: "line-1"}}))
	_, err := cache.Get(ctx, "user123")
	assert.ErrorIs(t, err, ErrCacheMiss)
	require.NoError(t, cache.Delete(ctx, "user123"))
}
