package pool

import (
	"context"
	"time"
)

// DefaultHealthCheckInterval is the default pool health-check cadence;
// overridden per pool by PoolConfig.HealthCheckInterval when set.
const DefaultHealthCheckInterval = 30 * time.Second

// Start launches the Manager's background health loop, which refreshes
// every known pool's balancer health flags and breaker promotions on
// each pool's own HealthCheckInterval (checked once a second). Scaling
// decisions come from an autoscaler.Autoscaler (autoscaler.New, then
// Start) run against the same Manager.
func (m *Manager) Start(ctx context.Context) {
	go m.healthLoop(ctx)
}

func (m *Manager) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	last := make(map[*FunctionPool]time.Time)
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, fp := range m.All() {
				interval := fp.Config().HealthCheckInterval
				if interval <= 0 {
					interval = DefaultHealthCheckInterval
				}
				if now.Sub(last[fp]) < interval {
					continue
				}
				last[fp] = now
				fp.RefreshHealth()
			}
		}
	}
}
