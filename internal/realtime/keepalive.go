package realtime

import (
	"context"
	"time"

	"mewayz-notifications/internal/logging"
)

// Keepalive pings every registered connection each interval until ctx is
// cancelled. Connections whose ping fails are dropped from the registry.
func Keepalive(ctx context.Context, registry *Registry, interval time.Duration, logger *logging.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			live := registry.Ping(interval / 2)
			logger.Debugf("Keepalive: %d live connections", live)
		}
	}
}
