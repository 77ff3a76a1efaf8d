package units

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// UploadLimit is how many text uploads a user may make per window.
	UploadLimit  = 20
	UploadWindow = time.Hour

	keyPrefix = "dorfkoenig:ratelimit:text:"
)

// RedisLimiter is a fixed-window upload counter per user.
type RedisLimiter struct {
	client redis.UniversalClient
	limit  int64
	window time.Duration
}

// NewRedisLimiter creates a limiter allowing limit uploads per window.
func NewRedisLimiter(client redis.UniversalClient, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, limit: int64(limit), window: window}
}

func (l *RedisLimiter) key(userID string) string {
	return keyPrefix + userID
}

// Allow reports whether userID has uploads left in the current window.
func (l *RedisLimiter) Allow(ctx context.Context, userID string) (bool, error) {
	count, err := l.client.Get(ctx, l.key(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("read upload counter: %w", err)
	}
	return count < l.limit, nil
}

// Record counts one upload. The window starts with the first upload.
func (l *RedisLimiter) Record(ctx context.Context, userID string) error {
	key := l.key(userID)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("increment upload counter: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return fmt.Errorf("expire upload counter: %w", err)
		}
	}
	return nil
}
