package cache

import (
	"context"
	"errors"
	"time"

	"wedding-site-backend/internal/config"

	"github.com/go-redis/redis/v8"
)

var ErrCacheMiss = errors.New("cache miss")

const slugKeyPrefix = "wedding-site:slug:"

// SlugCache memoizes slug to tenant id resolution.
type SlugCache interface {
	Get(ctx context.Context, slug string) (string, error)
	Set(ctx context.Context, slug, tenantID string) error
	Delete(ctx context.Context, slugs ...string) error
}

type RedisSlugCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSlugCache(client *redis.Client, ttl time.Duration) *RedisSlugCache {
	return &RedisSlugCache{client: client, ttl: ttl}
}

func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func (c *RedisSlugCache) Get(ctx context.Context, slug string) (string, error) {
	val, err := c.client.Get(ctx, slugKeyPrefix+slug).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrCacheMiss
		}
		return "", err
	}
	return val, nil
}

func (c *RedisSlugCache) Set(ctx context.Context, slug, tenantID string) error {
	return c.client.Set(ctx, slugKeyPrefix+slug, tenantID, c.ttl).Err()
}

func (c *RedisSlugCache) Delete(ctx context.Context, slugs ...string) error {
	if len(slugs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(slugs))
	for _, s := range slugs {
		keys = append(keys, slugKeyPrefix+s)
	}
	return c.client.Del(ctx, keys...).Err()
}
