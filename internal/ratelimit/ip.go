package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// IPThrottle keeps one token bucket per client address.
type IPThrottle struct {
	mu      sync.Mutex
	entries map[string]*ipEntry
	rps     rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time
}

type ipEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewIPThrottle allows rps requests per second per address with the given burst.
func NewIPThrottle(rps float64, burst int) *IPThrottle {
	return &IPThrottle{
		entries: make(map[string]*ipEntry),
		rps:     rate.Limit(rps),
		burst:   burst,
		idleTTL: 15 * time.Minute,
		now:     time.Now,
	}
}

// Allow reports whether addr may make a request now.
func (t *IPThrottle) Allow(addr string) bool {
	now := t.now()

	t.mu.Lock()
	ent, ok := t.entries[addr]
	if !ok {
		ent = &ipEntry{lim: rate.NewLimiter(t.rps, t.burst)}
		t.entries[addr] = ent
	}
	ent.lastSeen = now
	t.mu.Unlock()

	return ent.lim.AllowN(now, 1)
}

// Cleanup drops addresses idle for longer than the idle TTL.
func (t *IPThrottle) Cleanup() {
	cutoff := t.now().Add(-t.idleTTL)

	t.mu.Lock()
	defer t.mu.Unlock()

	for k, ent := range t.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(t.entries, k)
		}
	}
}

// Len returns the number of tracked addresses.
func (t *IPThrottle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// StartJanitor runs Cleanup every interval until ctx is done.
func (t *IPThrottle) StartJanitor(ctx context.Context, every time.Duration) {
	tick := time.NewTicker(every)
	go func() {
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				t.Cleanup()
			}
		}
	}()
}
