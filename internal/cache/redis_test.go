package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
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

	return NewRedisCache(client, 15*time.Minute), mr
}

func testCart(ownerID string, version int64, qty int) *domain.Cart {
	now := time.Now().UTC().Truncate(time.Second)
	return &domain.Cart{
		ID:      "cart-1",
		OwnerID: ownerID,
		Lines: []domain.CartLine{
			{ID: "line-1", ProductID: 1, Quantity: qty, UnitPriceSnapshot: decimal.RequireFromString("19.99"), AddedAt: now, UpdatedAt: now},
		},
		Version:   version,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestGet_Miss(t *testing.T) {
	cache, _ := setupTestRedis(t)

	result, err := cache.Get(context.Background(), "nonexistent")

	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Nil(t, result)
}

func TestSetThenGet(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "user:1", testCart("user:1", 3, 2)))

	result, err := cache.Get(ctx, "user:1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.Version)
	require.Len(t, result.Lines, 1)
	assert.Equal(t, 2, result.Lines[0].Quantity)
	assert.True(t, result.Lines[0].UnitPriceSnapshot.Equal(decimal.RequireFromString("19.99")))

	assert.Equal(t, "3", mr.HGet(cacheKey("user:1"), fieldVersion))
	ttl := mr.TTL(cacheKey("user:1"))
	assert.GreaterOrEqual(t, ttl, 15*time.Minute)
	assert.Less(t, ttl, 20*time.Minute)
}

func TestSet_StaleVersionIgnored(t *testing.T) {
	cache, _ := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "user:1", testCart("user:1", 5, 7)))
	require.NoError(t, cache.Set(ctx, "user:1", testCart("user:1", 4, 1)))

	result, err := cache.Get(ctx, "user:1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), result.Version)
	assert.Equal(t, 7, result.Lines[0].Quantity)
}

func TestSet_NewerVersionWins(t *testing.T) {
	cache, _ := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "user:1", testCart("user:1", 1, 1)))
	require.NoError(t, cache.Set(ctx, "user:1", testCart("user:1", 2, 9)))

	result, err := cache.Get(ctx, "user:1")
	require.NoError(t, err)
	assert.Equal(t, 9, result.Lines[0].Quantity)
}

func TestDelete(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "user:1", testCart("user:1", 1, 1)))
	require.NoError(t, cache.Delete(ctx, "user:1"))

	assert.False(t, mr.Exists(cacheKey("user:1")))
	_, err := cache.Get(ctx, "user:1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestGet_CorruptedData(t *testing.T) {
	cache, mr := setupTestRedis(t)

	mr.HSet(cacheKey("user:1"), fieldData, "{not json")

	_, err := cache.Get(context.Background(), "user:1")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestRedisDown(t *testing.T) {
	cache, mr := setupTestRedis(t)
	mr.Close()

	_, err := cache.Get(context.Background(), "user:1")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}
