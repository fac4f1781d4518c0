package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter controls throughput per key.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Wait(ctx context.Context, key string) error
}

// Cooldown blocks a key for a fixed period after each admitted call. When the
// call is rejected, retryAfter is the time left until the key frees up.
type Cooldown interface {
	Acquire(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

var _ RateLimiter = (*LocalRateLimiter)(nil)

// LocalRateLimiter is an in-process token bucket per key.
type LocalRateLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewLocalRateLimiter allows perSec events per second per key. A non-positive
// perSec disables limiting.
func NewLocalRateLimiter(perSec float64, burst int) *LocalRateLimiter {
	limit := rate.Inf
	if perSec > 0 {
		limit = rate.Limit(perSec)
	}
	if burst < 1 {
		burst = 1
	}

	return &LocalRateLimiter{
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (l *LocalRateLimiter) Allow(_ context.Context, key string) (bool, error) {
	lim, err := l.limiterFor(key)
	if err != nil {
		return false, err
	}
	return lim.Allow(), nil
}

func (l *LocalRateLimiter) Wait(ctx context.Context, key string) error {
	lim, err := l.limiterFor(key)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return lim.Wait(ctx)
}

func (l *LocalRateLimiter) limiterFor(key string) (*rate.Limiter, error) {
	if l == nil {
		return nil, fmt.Errorf("rate limiter is not initialized")
	}

	normalized := NormalizeKey(key)
	if normalized == "" {
		return nil, fmt.Errorf("rate limit key is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[normalized]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[normalized] = lim
	}
	return lim, nil
}

func NormalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
