package monitor

import "github.com/fluxfaas/fluxfaas/internal/domain"

// Notifier adapts Monitor to the sandbox package's ResourceBreachNotifier
// interface for one fixed quota. It is duck-typed deliberately: monitor
// has no import on sandbox, so sandbox stays free to depend on monitor's
// concrete types without a cycle.
type Notifier struct {
	m     *Monitor
	quota domain.ResourceQuota
}

// NewNotifier binds a Monitor to the quota under which every PID it
// watches will be evaluated.
func NewNotifier(m *Monitor, quota domain.ResourceQuota) *Notifier {
	return &Notifier{m: m, quota: quota}
}

// Watch starts sampling pid and returns a stop func satisfying
// sandbox.ResourceBreachNotifier. The stop func reports whether a hard
// breach occurred, which resource kind tripped it, and the peak memory
// observed over the watch.
func (n *Notifier) Watch(pid int, onHardBreach func()) (func() (bool, domain.ResourceKind, float64), error) {
	h, err := n.m.Watch(pid, n.quota, onHardBreach)
	if err != nil {
		return nil, err
	}
	return func() (bool, domain.ResourceKind, float64) {
		s := h.Stop()
		return s.Breached, s.BreachedKind, s.Peak[domain.ResourceMemory]
	}, nil
}
