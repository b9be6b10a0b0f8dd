package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is an in-process Cache for single-instance deployments and tests.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
	ops     int
}

type memoryEntry struct {
	value     []byte
	counter   int64
	expiresAt time.Time
}

// sweepEvery is the number of writes between expired-entry sweeps.
const sweepEvery = 1024

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

// WithClock replaces the time source. Intended for tests.
func (c *MemoryCache) WithClock(now func() time.Time) *MemoryCache {
	c.now = now
	return c
}

func (c *MemoryCache) Ping(_ context.Context) error { return nil }

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	v := make([]byte, len(value))
	copy(v, value)
	c.entries[key] = memoryEntry{value: v, expiresAt: expiry(now, ttl)}
	c.maybeSweep(now)
	return nil
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.live(key, c.now())
	if !ok || e.value == nil {
		return nil, false, nil
	}
	v := make([]byte, len(e.value))
	copy(v, e.value)
	return v, true, nil
}

func (c *MemoryCache) IncrWithExpiry(_ context.Context, key string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	e, ok := c.live(key, now)
	if !ok {
		e = memoryEntry{expiresAt: expiry(now, ttl)}
	}
	e.counter++
	c.entries[key] = e
	c.maybeSweep(now)
	return e.counter, nil
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// live must be called with mu held.
func (c *MemoryCache) live(key string, now time.Time) (memoryEntry, bool) {
	e, ok := c.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
		delete(c.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

// maybeSweep must be called with mu held.
func (c *MemoryCache) maybeSweep(now time.Time) {
	c.ops++
	if c.ops < sweepEvery {
		return
	}
	c.ops = 0
	for k, e := range c.entries {
		if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}

func expiry(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}
