package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/dailydose/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultLimit  int64 = 1
	defaultWindow       = 10 * time.Second
	defaultPrefix       = "ratelimit"
	backoffStep         = 10 * time.Millisecond
	backoffMax          = 50 * time.Millisecond
)

var allowScript = goredis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

var _ ratelimit.RateLimiter = (*RedisRateLimiter)(nil)

// RedisRateLimiter is a distributed fixed-window limiter backed by Redis.
// Each key may perform limit calls per window.
type RedisRateLimiter struct {
	client *goredis.Client
	prefix string
	limit  int64
	window time.Duration
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	script *goredis.Script
}

func NewRedisRateLimiter(client *goredis.Client, prefix string, limit int, window time.Duration) (*RedisRateLimiter, error) {
	return newRedisRateLimiter(
		client,
		prefix,
		int64(limit),
		window,
		time.Now,
		sleepWithContext,
	)
}

func newRedisRateLimiter(
	client *goredis.Client,
	prefix string,
	limit int64,
	window time.Duration,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if prefix == "" {
		prefix = defaultPrefix
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if window < time.Second {
		window = defaultWindow
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &RedisRateLimiter{
		client: client,
		prefix: prefix,
		limit:  limit,
		window: window,
		now:    nowFn,
		sleep:  sleepFn,
		script: allowScript,
	}, nil
}

func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if r == nil || r.client == nil || r.script == nil {
		return false, fmt.Errorf("rate limiter is not initialized")
	}

	normalizedKey := ratelimit.NormalizeKey(key)
	if normalizedKey == "" {
		return false, fmt.Errorf("rate limit key is required")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	windowSeconds := int64(r.window / time.Second)
	bucket := r.now().UTC().Unix() / windowSeconds
	redisKey := fmt.Sprintf("%s:%s:%d", r.prefix, normalizedKey, bucket)

	result, err := r.script.Run(ctx, r.client, []string{redisKey}, r.limit, windowSeconds).Int()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate rate limit: %w", err)
	}

	return result == 1, nil
}

func (r *RedisRateLimiter) Wait(ctx context.Context, key string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	backoff := backoffStep
	for {
		allowed, err := r.Allow(ctx, key)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		if err := r.sleep(ctx, backoff); err != nil {
			return err
		}

		backoff += backoffStep
		if backoff > backoffMax {
			backoff = backoffMax
		}
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
