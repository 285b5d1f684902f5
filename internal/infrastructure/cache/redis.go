package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/archivus/docflow/internal/domain/services"
	"github.com/redis/go-redis/v9"
)

// RedisCacheService implements services.CacheService on a Redis server.
type RedisCacheService struct {
	rdb *redis.Client
}

// NewRedisCacheService connects to the Redis server at url and checks it answers.
func NewRedisCacheService(url string) (*RedisCacheService, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCacheService{rdb: rdb}, nil
}

// LPush prepends values to the list at key.
func (c *RedisCacheService) LPush(ctx context.Context, key string, values ...interface{}) error {
	return c.rdb.LPush(ctx, key, values...).Err()
}

// RPop removes and returns the oldest element of the list at key.
func (c *RedisCacheService) RPop(ctx context.Context, key string) (string, error) {
	value, err := c.rdb.RPop(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", services.ErrCacheMiss
	}
	return value, err
}

// LLen returns the length of the list at key.
func (c *RedisCacheService) LLen(ctx context.Context, key string) (int64, error) {
	return c.rdb.LLen(ctx, key).Result()
}

// Ping checks connectivity
func (c *RedisCacheService) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *RedisCacheService) Close() error {
	return c.rdb.Close()
}
