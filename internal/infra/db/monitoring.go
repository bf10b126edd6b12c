package db

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// MonitorPool logs pool utilisation periodically until ctx is done. The
// numbers make connection starvation visible before queries start timing
// out.
func (d *DB) MonitorPool(ctx context.Context, logger *zap.Logger, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := d.Pool.Stat()
				logger.Debug("db pool stats",
					zap.Int32("total_conns", stats.TotalConns()),
					zap.Int32("acquired_conns", stats.AcquiredConns()),
					zap.Int32("idle_conns", stats.IdleConns()),
					zap.Int64("empty_acquire_count", stats.EmptyAcquireCount()),
				)
			}
		}
	}()
}
