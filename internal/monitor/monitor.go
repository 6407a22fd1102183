// Package monitor implements the FluxFaaS resource monitor (C3): per-PID
// sampling of memory and CPU usage against a domain.ResourceQuota, with a
// one-shot idempotent hard-breach callback.
package monitor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/fluxfaas/fluxfaas/internal/domain"
	"github.com/fluxfaas/fluxfaas/internal/logging"
)

// MaxHistoryPoints bounds the rolling sample history kept per resource
// kind, per Handle.
const MaxHistoryPoints = 3600

// Sample is one point in a Handle's rolling history.
type Sample struct {
	At    time.Time
	Value float64
}

// Handle supervises one PID. Stop ends sampling and returns a summary.
type Handle struct {
	pid       int
	quota     domain.ResourceQuota
	onBreach  func()
	breached  atomic.Bool
	stopCh    chan struct{}
	wg        sync.WaitGroup

	mu         sync.Mutex
	history    map[domain.ResourceKind][]Sample
	peak       map[domain.ResourceKind]float64
	breachKind domain.ResourceKind
}

// ResourceSummary is the final observation set returned by Stop.
type ResourceSummary struct {
	Peak map[domain.ResourceKind]float64

	// Breached is true if any resource kind crossed its Hard limit during
	// the watch. BreachedKind names which one tripped first.
	Breached     bool
	BreachedKind domain.ResourceKind
}

// Reader abstracts the per-PID sampling source so tests can substitute a
// fake without a real /proc filesystem. The production implementation
// reads /proc/<pid>/status and /proc/<pid>/stat.
type Reader interface {
	Sample(pid int) (map[domain.ResourceKind]float64, error)
}

// Monitor starts and tracks Handles for live PIDs.
type Monitor struct {
	reader Reader
}

// New creates a Monitor. A nil reader defaults to ProcReader.
func New(reader Reader) *Monitor {
	if reader == nil {
		reader = ProcReader{}
	}
	return &Monitor{reader: reader}
}

// Watch starts sampling pid against quota and invokes onBreach at most
// once if any kind crosses its Hard limit. One goroutine samples every
// kind together, ticking at the shortest SampleInterval in quota and at
// least every 200ms; a kind's own longer interval is not kept separately.
// The returned Handle's Stop ends sampling; it must be called exactly once.
func (m *Monitor) Watch(pid int, quota domain.ResourceQuota, onBreach func()) (*Handle, error) {
	h := &Handle{
		pid:      pid,
		quota:    quota,
		onBreach: onBreach,
		stopCh:   make(chan struct{}),
		history:  make(map[domain.ResourceKind][]Sample),
		peak:     make(map[domain.ResourceKind]float64),
	}

	interval := shortestInterval(quota)
	h.wg.Add(1)
	go h.run(m.reader, interval)
	return h, nil
}

func shortestInterval(quota domain.ResourceQuota) time.Duration {
	shortest := 200 * time.Millisecond
	for _, limit := range quota.Limits {
		if limit.SampleInterval > 0 && limit.SampleInterval < shortest {
			shortest = limit.SampleInterval
		}
	}
	return shortest
}

func (h *Handle) run(reader Reader, interval time.Duration) {
	defer h.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.sampleOnce(reader)
		}
	}
}

func (h *Handle) sampleOnce(reader Reader) {
	values, err := reader.Sample(h.pid)
	if err != nil {
		// Process has likely exited; stop trying, Handle.Stop will be
		// called by the sandbox once Wait returns.
		return
	}

	h.mu.Lock()
	for kind, v := range values {
		h.history[kind] = appendBounded(h.history[kind], Sample{At: time.Now(), Value: v})
		if v > h.peak[kind] {
			h.peak[kind] = v
		}
	}
	h.mu.Unlock()

	for kind, v := range values {
		limit, ok := h.quota.Limits[kind]
		if !ok {
			continue
		}
		if v >= limit.Hard && h.breached.CompareAndSwap(false, true) {
			h.mu.Lock()
			h.breachKind = kind
			h.mu.Unlock()
			logging.Op().Warn("hard resource breach", "pid", h.pid, "kind", kind, "value", v, "limit", limit.Hard)
			if h.onBreach != nil {
				h.onBreach()
			}
			return
		}
		if v >= limit.Soft {
			logging.Op().Debug("soft resource breach", "pid", h.pid, "kind", kind, "value", v, "limit", limit.Soft)
		}
	}
}

func appendBounded(s []Sample, v Sample) []Sample {
	s = append(s, v)
	if len(s) > MaxHistoryPoints {
		s = s[len(s)-MaxHistoryPoints:]
	}
	return s
}

// Stop ends sampling and returns the final peak-usage summary.
func (h *Handle) Stop() *ResourceSummary {
	close(h.stopCh)
	h.wg.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()
	peak := make(map[domain.ResourceKind]float64, len(h.peak))
	for k, v := range h.peak {
		peak[k] = v
	}
	return &ResourceSummary{
		Peak:         peak,
		Breached:     h.breached.Load(),
		BreachedKind: h.breachKind,
	}
}

// History returns a copy of the rolling sample history for kind.
func (h *Handle) History(kind domain.ResourceKind) []Sample {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Sample, len(h.history[kind]))
	copy(out, h.history[kind])
	return out
}
