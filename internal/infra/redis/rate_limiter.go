package redis

import (
	"context"
	"fmt"
	"time"

	"companion-billing/internal/domain/ports/adapter"
)

var _ adapter.RateLimiter = (*RateLimiter)(nil)

// RateLimiter is a fixed-window counter kept in redis. A non-positive limit
// disables it.
type RateLimiter struct {
	counter WindowCounter
	limit   int
	window  time.Duration
}

func NewRateLimiter(counter WindowCounter, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{counter: counter, limit: limit, window: window}
}

// Allow counts one hit for key and reports whether it is within the limit.
func (r *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if r.limit <= 0 {
		return true, nil
	}
	count, err := r.counter.IncrWindow(ctx, key, r.window)
	if err != nil {
		return false, fmt.Errorf("rate limit %s: %w", key, err)
	}
	return count <= int64(r.limit), nil
}
