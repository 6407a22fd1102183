// Package autoscaler implements the FluxFaaS auto-scaler loop that
// drives C5's pool.Manager: every tick it computes each pool's avg_load
// and, subject to hysteresis and cooldown, calls ScaleUp or ScaleDown.
//
// This loop favors simplicity over smoothing: no EMA, no predicted-load
// forecasting, no persistent metrics store. It computes one
// instantaneous avg_load reading per pool per tick and calls
// ScaleUp/ScaleDown directly rather than only logging a recommendation.
package autoscaler

import (
	"context"
	"time"

	"github.com/fluxfaas/fluxfaas/internal/logging"
	"github.com/fluxfaas/fluxfaas/internal/pool"
)

// DefaultInterval is the default evaluation cadence.
const DefaultInterval = 30 * time.Second

// Autoscaler drives scaling decisions for every pool known to a
// pool.Manager.
type Autoscaler struct {
	pool     *pool.Manager
	interval time.Duration
	cancel   context.CancelFunc
}

// New creates an Autoscaler bound to m. Call Start to begin evaluating.
func New(m *pool.Manager, interval time.Duration) *Autoscaler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Autoscaler{pool: m, interval: interval}
}

// Start launches the evaluation loop in its own goroutine.
func (a *Autoscaler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	go a.loop(ctx)
	logging.Op().Info("autoscaler started", "interval", a.interval)
}

// Stop ends the evaluation loop.
func (a *Autoscaler) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
}

func (a *Autoscaler) loop(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.evaluate(ctx)
		}
	}
}

// evaluate applies a three-step rule for every pool: compute avg_load;
// scale up one instance if it's above
// ScaleUpThreshold and there's room; otherwise scale down one if it's
// below ScaleDownThreshold and above Min. Both are gated by the pool's
// own cooldown tracking in ScaleUp/ScaleDown.
func (a *Autoscaler) evaluate(ctx context.Context) {
	for _, fp := range a.pool.All() {
		cfg := fp.Config()
		avgLoad := fp.AvgLoad()
		healthy := fp.HealthyCount()

		switch {
		case avgLoad > cfg.ScaleUpThreshold && healthy < cfg.Max:
			n := cfg.Max - healthy
			if n > 1 {
				n = 1
			}
			if added, err := fp.ScaleUp(ctx, n); err != nil {
				logging.Op().Error("autoscaler scale-up failed", "function", fp.Name(), "error", err)
			} else if added > 0 {
				logging.Op().Info("autoscaler scaled up", "function", fp.Name(), "avg_load", avgLoad, "added", added)
			}
		case avgLoad < cfg.ScaleDownThreshold && healthy > cfg.Min:
			if removed, err := fp.ScaleDown(1); err != nil {
				logging.Op().Error("autoscaler scale-down failed", "function", fp.Name(), "error", err)
			} else if removed > 0 {
				logging.Op().Info("autoscaler scaled down", "function", fp.Name(), "avg_load", avgLoad, "removed", removed)
			}
		}
	}
}
