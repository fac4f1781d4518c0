package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/dailydose/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

// acquireScript claims the key for ARGV[1] milliseconds. It returns {1, 0}
// when claimed and {0, pttl} while an earlier claim is still live.
var acquireScript = goredis.NewScript(`
if redis.call("SET", KEYS[1], "1", "NX", "PX", ARGV[1]) then
  return {1, 0}
end
return {0, redis.call("PTTL", KEYS[1])}
`)

var _ ratelimit.Cooldown = (*RedisCooldown)(nil)

// RedisCooldown admits one call per key and then blocks that key for the
// full cooldown, measured from the admitted call.
type RedisCooldown struct {
	client   *goredis.Client
	prefix   string
	cooldown time.Duration
	script   *goredis.Script
}

func NewRedisCooldown(client *goredis.Client, prefix string, cooldown time.Duration) (*RedisCooldown, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if prefix == "" {
		prefix = defaultPrefix
	}
	if cooldown < time.Millisecond {
		cooldown = defaultWindow
	}

	return &RedisCooldown{
		client:   client,
		prefix:   prefix,
		cooldown: cooldown,
		script:   acquireScript,
	}, nil
}

func (r *RedisCooldown) Acquire(ctx context.Context, key string) (bool, time.Duration, error) {
	if r == nil || r.client == nil || r.script == nil {
		return false, 0, fmt.Errorf("cooldown is not initialized")
	}

	normalizedKey := ratelimit.NormalizeKey(key)
	if normalizedKey == "" {
		return false, 0, fmt.Errorf("cooldown key is required")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	redisKey := fmt.Sprintf("%s:%s", r.prefix, normalizedKey)
	result, err := r.script.Run(ctx, r.client, []string{redisKey}, r.cooldown.Milliseconds()).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("failed to evaluate cooldown: %w", err)
	}
	if len(result) != 2 {
		return false, 0, fmt.Errorf("unexpected cooldown reply %v", result)
	}

	if result[0] == 1 {
		return true, 0, nil
	}

	// A key without a TTL never frees up on its own; report the full cooldown.
	retryAfter := time.Duration(result[1]) * time.Millisecond
	if retryAfter <= 0 {
		retryAfter = r.cooldown
	}
	return false, retryAfter, nil
}
