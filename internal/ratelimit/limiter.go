// Package ratelimit counts requests per API key in fixed one-hour windows.
//
// Counting is delegated to a Counter whose increment must be atomic; that is
// the only guarantee concurrent requests against the same key rely on.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/ideahub/internal/cache"
	"github.com/kiranshivaraju/ideahub/internal/store"
)

// Window is the length of one rate-limit bucket.
const Window = time.Hour

// Counter atomically increments the counter for (keyID, endpoint, window)
// and returns the new value.
type Counter interface {
	Incr(ctx context.Context, keyID uuid.UUID, endpoint string, windowStart time.Time) (int64, error)
}

// Decision is the outcome of consuming one request.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// RetryAfter is the time left until the window resets, at least one second.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.Reset.Sub(now)
	if wait < time.Second {
		return time.Second
	}
	return wait.Round(time.Second)
}

// Limiter applies per-key hourly limits.
type Limiter struct {
	counter Counter
	now     func() time.Time
}

// NewLimiter creates a Limiter over counter.
func NewLimiter(counter Counter) *Limiter {
	return &Limiter{counter: counter, now: time.Now}
}

// WithClock replaces the time source. Intended for tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Now returns the limiter's current time.
func (l *Limiter) Now() time.Time { return l.now() }

// Consume counts one request for keyID against limit in the current window.
// On counter failure the returned error is non-nil and the Decision is zero.
func (l *Limiter) Consume(ctx context.Context, keyID uuid.UUID, endpoint string, limit int) (Decision, error) {
	now := l.now().UTC()
	start := now.Truncate(Window)

	count, err := l.counter.Incr(ctx, keyID, endpoint, start)
	if err != nil {
		return Decision{}, fmt.Errorf("consume rate limit: %w", err)
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Remaining: remaining,
		Reset:     start.Add(Window),
	}, nil
}

// WindowLabel formats a window start as YYYYMMDDHH.
func WindowLabel(start time.Time) string {
	return start.UTC().Format("2006010215")
}

// CacheCounter counts in a cache.Cache (Redis or in-memory).
type CacheCounter struct {
	cache cache.Cache
}

func NewCacheCounter(c cache.Cache) *CacheCounter {
	return &CacheCounter{cache: c}
}

// bucketTTL outlives any window its key is first written in, whatever clock
// the caller uses.
const bucketTTL = Window + time.Minute

func (c *CacheCounter) Incr(ctx context.Context, keyID uuid.UUID, endpoint string, windowStart time.Time) (int64, error) {
	return c.cache.IncrWithExpiry(ctx, cache.RateLimitKey(keyID, endpoint, WindowLabel(windowStart)), bucketTTL)
}

// StoreCounter counts in the rate_limit_counters table.
type StoreCounter struct {
	store store.Store
}

func NewStoreCounter(s store.Store) *StoreCounter {
	return &StoreCounter{store: s}
}

func (c *StoreCounter) Incr(ctx context.Context, keyID uuid.UUID, endpoint string, windowStart time.Time) (int64, error) {
	return c.store.IncrRateLimitCounter(ctx, keyID, endpoint, windowStart)
}
