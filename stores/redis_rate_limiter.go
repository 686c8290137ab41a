package stores

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter is a fixed-window counter backed by Redis INCR/EXPIRE
// (key: ratelimit:{key}), safe across processes.
type RedisRateLimiter struct {
	client *redis.Client
	keyFmt string // format string, e.g. "ratelimit:%s"
}

func NewRedisRateLimiter(client *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, keyFmt: "ratelimit:%s"}
}

func (r *RedisRateLimiter) key(key string) string {
	return fmt.Sprintf(r.keyFmt, key)
}

func (r *RedisRateLimiter) Attempt(ctx context.Context, key string, maxAttempts int, window time.Duration) (bool, error) {
	count, err := r.Hit(ctx, key, window)
	if err != nil {
		return false, err
	}
	return count <= maxAttempts, nil
}

func (r *RedisRateLimiter) TooManyAttempts(ctx context.Context, key string, maxAttempts int) (bool, error) {
	count, err := r.client.Get(ctx, r.key(key)).Int()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return count >= maxAttempts, nil
}

// Hit increments the counter, starting the window on the first hit.
func (r *RedisRateLimiter) Hit(ctx context.Context, key string, window time.Duration) (int, error) {
	k := r.key(key)
	count, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := r.client.Expire(ctx, k, window).Err(); err != nil {
			return int(count), err
		}
	}
	return int(count), nil
}

func (r *RedisRateLimiter) Clear(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

func (r *RedisRateLimiter) AvailableIn(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := r.client.TTL(ctx, r.key(key)).Result()
	if err != nil {
		return 0, err
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}
