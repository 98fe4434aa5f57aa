package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisSlugCache) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisSlugCache(client, time.Minute)
}

func TestRedisSlugCacheRoundTrip(t *testing.T) {
	_, c := setupTestRedis(t)
	ctx := context.Background()

	_, err := c.Get(ctx, "anna-and-ben")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "anna-and-ben", "t1"))
	got, err := c.Get(ctx, "anna-and-ben")
	require.NoError(t, err)
	assert.Equal(t, "t1", got)

	require.NoError(t, c.Delete(ctx, "anna-and-ben", "unknown"))
	_, err = c.Get(ctx, "anna-and-ben")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisSlugCacheExpires(t *testing.T) {
	mr, c := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "slug", "t1"))
	mr.FastForward(2 * time.Minute)

	_, err := c.Get(ctx, "slug")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisSlugCacheSurfacesConnectionErrors(t *testing.T) {
	mr, c := setupTestRedis(t)
	mr.Close()

	_, err := c.Get(context.Background(), "slug")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}
