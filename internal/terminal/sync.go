package terminal

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Pinger probes the remote service for reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// syncLoop replays the offline queue on a fixed interval and immediately on
// connectivity-restored notifications. Both triggers funnel into the same
// Drain call, whose singleflight guard makes concurrent invocations safe.
func (e *Engine) syncLoop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-e.restored:
			e.lg.Info("Connectivity restored, draining offline queue")
		}

		pending, err := e.queue.Pending()
		if err != nil {
			e.lg.Error("Reading offline queue", zap.Error(err))
			continue
		}
		if pending == 0 {
			continue
		}

		result, err := e.queue.Drain(ctx, e.commit)
		if err != nil {
			e.lg.Error("Offline queue drain aborted", zap.Error(err))
			continue
		}
		e.lg.Info("Offline queue drained",
			zap.Int("committed", result.Committed),
			zap.Int("failed", result.Failed),
			zap.Int("skipped", result.Skipped),
		)
	}
}

// watchConnectivity polls the remote service and emits a restored
// notification on each offline-to-online transition.
func (e *Engine) watchConnectivity(ctx context.Context, pinger Pinger, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	online := true
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		err := pinger.Ping(ctx)
		switch {
		case err == nil && !online:
			online = true
			e.NotifyConnectivityRestored()
		case err != nil && online:
			online = false
			e.lg.Warn("Remote service unreachable", zap.Error(err))
		}
	}
}

// refreshCatalog keeps the local snapshot current. Refresh failures are
// logged and retried next tick; they never touch the sale path.
func (e *Engine) refreshCatalog(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := e.catalog.Refresh(ctx); err != nil {
		e.lg.Warn("Initial catalog refresh failed, using snapshot", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := e.catalog.Refresh(ctx); err != nil {
				e.lg.Warn("Catalog refresh failed", zap.Error(err))
			}
		}
	}
}
