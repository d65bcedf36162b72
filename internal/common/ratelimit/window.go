package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

var ErrInvalidWindow = errors.New("invalid rate window payload")

// WindowLimiter is a fixed-window counter kept in Redis so every instance of
// the service shares the same attempt budget.
type WindowLimiter struct {
	client goredis.Cmdable
	prefix string
	limit  int64
	window time.Duration
}

type Decision struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	RetryAfter time.Duration
}

func NewWindowLimiter(client goredis.Cmdable, prefix string, limit int, window time.Duration) *WindowLimiter {
	if limit < 0 {
		limit = 0
	}
	return &WindowLimiter{
		client: client,
		prefix: prefix,
		limit:  int64(limit),
		window: window,
	}
}

func (l *WindowLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	if l.client == nil {
		return Decision{}, fmt.Errorf("redis client is nil")
	}
	if key == "" || l.window <= 0 {
		return Decision{}, ErrInvalidWindow
	}
	if l.limit == 0 {
		return Decision{Allowed: true}, nil
	}

	fullKey := l.prefix + key

	count, err := l.client.Incr(ctx, fullKey).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("increment rate key: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, fullKey, l.window).Err(); err != nil {
			return Decision{}, fmt.Errorf("set rate key ttl: %w", err)
		}
	}

	ttl, err := l.client.TTL(ctx, fullKey).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("read rate key ttl: %w", err)
	}
	if ttl < 0 {
		// key lost its expiry, e.g. INCR raced a previous EXPIRE failure
		if err := l.client.Expire(ctx, fullKey, l.window).Err(); err != nil {
			return Decision{}, fmt.Errorf("repair rate key ttl: %w", err)
		}
		ttl = l.window
	}

	remaining := l.limit - count
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:    count <= l.limit,
		Limit:      l.limit,
		Remaining:  remaining,
		RetryAfter: ttl,
	}, nil
}

func (d Decision) RetryAfterSeconds() int64 {
	if d.RetryAfter <= 0 {
		return 0
	}
	sec := int64(d.RetryAfter / time.Second)
	if d.RetryAfter%time.Second != 0 {
		sec++
	}
	return sec
}

func NewRedisClient(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return goredis.NewClient(opts), nil
}
