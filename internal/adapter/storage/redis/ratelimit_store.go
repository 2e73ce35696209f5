package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// WriteLimiter counts ledger writes per caller in fixed windows.
type WriteLimiter struct {
	client *goredis.Client
	prefix string
	limit  int64
	window time.Duration
	now    func() time.Time
}

// LimitResult holds the outcome of one Allow call.
type LimitResult struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   time.Time
}

// NewWriteLimiter allows limit writes per caller per window.
func NewWriteLimiter(client *goredis.Client, limit int64, window time.Duration) *WriteLimiter {
	if window < time.Second {
		window = time.Second
	}
	return &WriteLimiter{
		client: client,
		prefix: "ratelimit:",
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow records one write for caller and reports whether it fits the window.
// The counter and its expiry are set in one MULTI block.
func (l *WriteLimiter) Allow(ctx context.Context, caller string) (*LimitResult, error) {
	now := l.now()
	windowID := now.Unix() / int64(l.window.Seconds())
	key := fmt.Sprintf("%s%s:%d", l.prefix, caller, windowID)

	var incr *goredis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		incr = p.Incr(ctx, key)
		p.Expire(ctx, key, l.window+time.Second)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis rate limit incr: %w", err)
	}

	count := incr.Val()
	remaining := l.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return &LimitResult{
		Allowed:   count <= l.limit,
		Limit:     l.limit,
		Remaining: remaining,
		ResetAt:   time.Unix((windowID+1)*int64(l.window.Seconds()), 0),
	}, nil
}
