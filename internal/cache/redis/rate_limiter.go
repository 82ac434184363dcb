package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dexlens/dexlens/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowSrc string

// limiterKeyPrefix keeps limiter state apart from price and book keys on a
// shared Redis instance.
const limiterKeyPrefix = "dexlens:limit:"

// RateLimiter is a sliding-window rate limiter backed by one Redis sorted
// set per key. The window trim and the admission decision run inside a Lua
// script, so concurrent callers across processes observe a single consistent
// count.
type RateLimiter struct {
	rdb    *redis.Client
	script *redis.Script
}

// NewRateLimiter creates a RateLimiter backed by the given Client.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{
		rdb:    c.Underlying(),
		script: redis.NewScript(slidingWindowSrc),
	}
}

// Allow reports whether a request for key is admitted under limit requests
// per window. An admitted request is recorded by the same atomic script
// call; a rejected one leaves the window untouched.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	reply, err := rl.script.Run(ctx, rl.rdb,
		[]string{limiterKeyPrefix + key},
		time.Now().UnixMicro(),
		window.Microseconds(),
		limit,
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}
	if len(reply) != 2 {
		return false, fmt.Errorf("redis: rate limit %s: malformed script reply (%d values)", key, len(reply))
	}
	return reply[0] == 1, nil
}

// Compile-time interface check.
var _ domain.RateLimiter = (*RateLimiter)(nil)
