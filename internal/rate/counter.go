package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter is a Redis fixed-window counter: INCR plus EXPIRE on the first hit.
type Counter struct {
	redis redis.UniversalClient
}

// NewCounter returns a Counter backed by client.
func NewCounter(client redis.UniversalClient) *Counter {
	return &Counter{redis: client}
}

// Get returns the current count for key; a missing key counts as zero.
func (c *Counter) Get(ctx context.Context, key string) (int64, error) {
	count, err := c.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return count, nil
}

// Incr increments key and starts its window on the first hit.
func (c *Counter) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := c.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count == 1 {
		if err := c.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return count, nil
}

// Reset deletes keys.
func (c *Counter) Reset(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
