package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// RateLimiter throttles by key. Allow reports how long to back off when the
// request is refused.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}

// RedisRateLimiter is a GCRA limiter shared by every instance pointing at the
// same Redis.
type RedisRateLimiter struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
}

// NewRedisRateLimiter allows perSecond requests per key with an equal burst.
func NewRedisRateLimiter(rdb *redis.Client, perSecond int) *RedisRateLimiter {
	return &RedisRateLimiter{
		limiter: redis_rate.NewLimiter(rdb),
		limit:   redis_rate.PerSecond(perSecond),
	}
}

// NewRedisWindowLimiter allows limit requests per period per key.
func NewRedisWindowLimiter(rdb *redis.Client, limit int, period time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{
		limiter: redis_rate.NewLimiter(rdb),
		limit:   redis_rate.Limit{Rate: limit, Burst: limit, Period: period},
	}
}

func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	res, err := rl.limiter.Allow(ctx, rateLimitKey(key), rl.limit)
	if err != nil {
		return false, 0, fmt.Errorf("cache: rate limit %s: %w", key, err)
	}
	return res.Allowed > 0, res.RetryAfter, nil
}

// MemoryRateLimiter is a fixed-window counter for single-instance runs.
type MemoryRateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	buckets map[string]*window
	now     func() time.Time
}

type window struct {
	start time.Time
	count int
}

func NewMemoryRateLimiter(limit int, per time.Duration) *MemoryRateLimiter {
	return &MemoryRateLimiter{
		limit:   limit,
		window:  per,
		buckets: make(map[string]*window),
		now:     time.Now,
	}
}

func (rl *MemoryRateLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[key]
	if !ok || now.Sub(b.start) >= rl.window {
		rl.buckets[key] = &window{start: now, count: 1}
		return true, 0, nil
	}
	if b.count >= rl.limit {
		return false, rl.window - now.Sub(b.start), nil
	}
	b.count++
	return true, 0, nil
}

// Wait blocks until key is allowed or ctx is done.
func Wait(ctx context.Context, rl RateLimiter, key string) error {
	for {
		allowed, retryAfter, err := rl.Allow(ctx, key)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}
		if retryAfter <= 0 {
			retryAfter = 50 * time.Millisecond
		}
		timer := time.NewTimer(retryAfter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("cache: rate limit wait %s: %w", key, ctx.Err())
		case <-timer.C:
		}
	}
}

func rateLimitKey(key string) string {
	return "ratelimit:" + key
}

var (
	_ RateLimiter = (*RedisRateLimiter)(nil)
	_ RateLimiter = (*MemoryRateLimiter)(nil)
)
