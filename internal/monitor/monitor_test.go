package monitor

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/fluxfaas/fluxfaas/internal/domain"
)

type fakeReader struct {
	values []map[domain.ResourceKind]float64
	i      int
}

func (f *fakeReader) Sample(pid int) (map[domain.ResourceKind]float64, error) {
	if f.i >= len(f.values) {
		return f.values[len(f.values)-1], nil
	}
	v := f.values[f.i]
	f.i++
	return v, nil
}

func TestWatchTriggersHardBreachOnce(t *testing.T) {
	reader := &fakeReader{values: []map[domain.ResourceKind]float64{
		{domain.ResourceMemory: 50},
		{domain.ResourceMemory: 300}, // above default hard=256
		{domain.ResourceMemory: 400},
	}}
	m := New(reader)

	quota := domain.DefaultQuota()
	quota.Limits[domain.ResourceMemory] = domain.ResourceLimit{Soft: 128, Hard: 256, SampleInterval: 5 * time.Millisecond}

	var breaches atomic.Int32
	h, err := m.Watch(1234, quota, func() { breaches.Add(1) })
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	deadline := time.Now().Add(200 * time.Millisecond)
	for breaches.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	summary := h.Stop()
	if breaches.Load() != 1 {
		t.Fatalf("expected exactly one breach callback, got %d", breaches.Load())
	}
	if summary.Peak[domain.ResourceMemory] < 300 {
		t.Fatalf("expected peak memory >= 300, got %v", summary.Peak[domain.ResourceMemory])
	}
	if !summary.Breached {
		t.Fatalf("expected summary.Breached, got false")
	}
	if summary.BreachedKind != domain.ResourceMemory {
		t.Fatalf("expected BreachedKind=%s, got %s", domain.ResourceMemory, summary.BreachedKind)
	}
}

func TestHistoryBoundedByMaxHistoryPoints(t *testing.T) {
	h := &Handle{history: map[domain.ResourceKind][]Sample{}}
	for i := 0; i < MaxHistoryPoints+100; i++ {
		h.history[domain.ResourceMemory] = appendBounded(h.history[domain.ResourceMemory], Sample{Value: float64(i)})
	}
	if len(h.history[domain.ResourceMemory]) != MaxHistoryPoints {
		t.Fatalf("expected history capped at %d, got %d", MaxHistoryPoints, len(h.history[domain.ResourceMemory]))
	}
}
