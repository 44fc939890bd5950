// Package ratelimit implements a fixed-window request limiter on Redis.
package ratelimit

import (
	"context"
	"time"

	"github.com/dmitrijs2005/contactkeeper/internal/logging"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ratelimit:"

// Limiter allows at most limit hits per key in each window.
type Limiter struct {
	rdb    redis.Cmdable
	limit  int
	window time.Duration
	logger logging.Logger
}

func NewLimiter(rdb redis.Cmdable, limit int, window time.Duration, logger logging.Logger) *Limiter {
	return &Limiter{rdb: rdb, limit: limit, window: window, logger: logger}
}

// Allow counts one hit for key. When the window is full it returns false
// and how long until the window resets.
//
// The limiter fails open: if Redis cannot be reached the hit is allowed
// and the error is returned for logging only.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	if l.limit <= 0 {
		return true, 0, nil
	}

	k := keyPrefix + key

	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, l.window)
	ttl := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Warn(ctx, "rate limiter unavailable, allowing request", "key", k, "error", err)
		return true, 0, err
	}

	if incr.Val() <= int64(l.limit) {
		return true, 0, nil
	}

	retryAfter := ttl.Val()
	if retryAfter <= 0 {
		retryAfter = l.window
	}
	return false, retryAfter, nil
}
