package rediscache

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RateLimiter: счётчик с фиксированным окном, ключ живёт одно окно,
// каждый вызов делает INCR.
type RateLimiter struct {
	c      *redis.Client
	prefix string
}

func NewRateLimiter(addr, prefix string) *RateLimiter {
	if prefix == "" {
		prefix = "rl"
	}
	return &RateLimiter{
		c:      redis.NewClient(&redis.Options{Addr: addr}),
		prefix: prefix,
	}
}

// Allow учитывает запрос subject в текущем окне.
// Возвращает (allowed, currentCount).
func (rl *RateLimiter) Allow(ctx context.Context, subject string, limit int64, window time.Duration) (bool, int64, error) {
	if window <= 0 {
		window = time.Minute
	}
	key := rl.windowKey(subject, time.Now().UTC(), window)

	pipe := rl.c.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window+10*time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, errors.Wrap(err, "redis ratelimit")
	}
	n := incr.Val()
	return n <= limit, n, nil
}

func (rl *RateLimiter) windowKey(subject string, now time.Time, window time.Duration) string {
	return fmt.Sprintf("%s:%s:%d", rl.prefix, subject, now.UnixNano()/int64(window))
}

func (rl *RateLimiter) Ping(ctx context.Context) error {
	return errors.Wrap(rl.c.Ping(ctx).Err(), "redis ping")
}

func (rl *RateLimiter) Close() error {
	return rl.c.Close()
}
