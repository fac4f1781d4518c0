package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func newTestCooldown(t *testing.T, cooldown time.Duration) (*RedisCooldown, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
	})

	c, err := NewRedisCooldown(rdb, "ratelimit:random", cooldown)
	if err != nil {
		t.Fatalf("NewRedisCooldown() error = %v", err)
	}
	return c, mr
}

func TestRedisCooldownBlocksForFullPeriodAfterEachCall(t *testing.T) {
	t.Parallel()

	cooldown, mr := newTestCooldown(t, 10*time.Second)
	ctx := context.Background()

	allowed, _, err := cooldown.Acquire(ctx, "ip:1.2.3.4")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if !allowed {
		t.Fatal("first call should be allowed")
	}

	// Two calls under a second apart are never both admitted, wherever they
	// fall relative to wall-clock boundaries.
	mr.FastForward(600 * time.Millisecond)
	allowed, retryAfter, err := cooldown.Acquire(ctx, "ip:1.2.3.4")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if allowed {
		t.Fatal("call 0.6s after an admitted call should be rejected")
	}
	if retryAfter != 9400*time.Millisecond {
		t.Fatalf("retryAfter = %s, want 9.4s", retryAfter)
	}

	// A rejected call does not extend the cooldown.
	mr.FastForward(9 * time.Second)
	_, retryAfter, err = cooldown.Acquire(ctx, "ip:1.2.3.4")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if retryAfter != 400*time.Millisecond {
		t.Fatalf("retryAfter = %s, want 400ms", retryAfter)
	}

	mr.FastForward(400 * time.Millisecond)
	allowed, _, err = cooldown.Acquire(ctx, "ip:1.2.3.4")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if !allowed {
		t.Fatal("call after the cooldown should be allowed")
	}
}

func TestRedisCooldownIsolatesKeys(t *testing.T) {
	t.Parallel()

	cooldown, _ := newTestCooldown(t, 10*time.Second)
	ctx := context.Background()

	for _, key := range []string{"user:1", "user:2", "ip:1.2.3.4"} {
		allowed, _, err := cooldown.Acquire(ctx, key)
		if err != nil {
			t.Fatalf("Acquire(%q) error = %v", key, err)
		}
		if !allowed {
			t.Fatalf("Acquire(%q) should be allowed", key)
		}
	}

	allowed, _, err := cooldown.Acquire(ctx, "user:1")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if allowed {
		t.Fatal("second call for user:1 should be rejected")
	}
}

func TestRedisCooldownRequiresKey(t *testing.T) {
	t.Parallel()

	cooldown, _ := newTestCooldown(t, time.Second)
	if _, _, err := cooldown.Acquire(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestNewRedisCooldownRequiresClient(t *testing.T) {
	t.Parallel()

	if _, err := NewRedisCooldown(nil, "x", time.Second); err == nil {
		t.Fatal("expected error for nil client")
	}
}
