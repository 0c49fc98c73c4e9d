package storecheck

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angeloszaimis/distbreaker/internal/stats"
)

// Watch periodically pings the shared store and reports connectivity
// changes. It is purely observational: the breaker's own degraded-mode
// handling does not depend on it.
func Watch(
	ctx context.Context,
	client *redis.Client,
	interval time.Duration,
	collector *stats.Collector,
	logger *slog.Logger,
) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	wasHealthy := true

	for {
		select {
		case <-ctx.Done():
			logger.Info("Store check stopped")
			return

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, interval)
			err := client.Ping(pingCtx).Err()
			cancel()

			healthy := err == nil
			if healthy != wasHealthy {
				if healthy {
					logger.Info("Store link is back up")
				} else {
					logger.Warn("Store link is down",
						slog.String("error", err.Error()))
				}
			}
			wasHealthy = healthy

			collector.Record(stats.Event{
				Type:      stats.EventStoreHealth,
				Timestamp: time.Now(),
				Healthy:   healthy,
			})
		}
	}
}
