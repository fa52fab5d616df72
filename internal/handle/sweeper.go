package handle

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// StartSweeper runs a periodic background sweep of the store until ctx is
// cancelled. interval <= 0 uses DefaultSweepInterval. Safe to run alongside
// Put/Get: records are immutable, so a sweep deleting a record that a
// concurrent Get is evaluating as expired produces the same "not found"
// outcome either way.
func StartSweeper(ctx context.Context, store Store, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if purged := store.Sweep(); purged > 0 {
					logger.Info("swept expired query handles", zap.Int("purged", purged))
				}
			}
		}
	}()
}
