package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/ideahub/internal/store"
)

// PruneCounters deletes stored counter rows older than two windows.
func PruneCounters(ctx context.Context, s store.Store, now time.Time) (int64, error) {
	return s.PruneRateLimitCounters(ctx, now.UTC().Truncate(Window).Add(-2*Window))
}

// StartPruner runs PruneCounters every interval until ctx is done.
func StartPruner(ctx context.Context, s store.Store, every time.Duration) {
	tick := time.NewTicker(every)
	go func() {
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-tick.C:
				n, err := PruneCounters(ctx, s, now)
				if err != nil {
					slog.Warn("prune rate limit counters failed", "error", err)
					continue
				}
				slog.Debug("pruned rate limit counters", "rows", n)
			}
		}
	}()
}
