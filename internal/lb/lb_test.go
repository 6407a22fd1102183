package lb

import (
	"testing"
	"time"

	"github.com/fluxfaas/fluxfaas/internal/domain"
)

func TestRoundRobinCyclesAllTargets(t *testing.T) {
	b := New(domain.StrategyRoundRobin, DefaultBreakerConfig())
	b.Put("a", 1)
	b.Put("b", 1)
	b.Put("c", 1)

	seen := map[string]int{}
	for i := 0; i < 6; i++ {
		id, err := b.Select("")
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		seen[id]++
	}
	for _, id := range []string{"a", "b", "c"} {
		if seen[id] != 2 {
			t.Fatalf("expected %s picked 2 times, got %d", id, seen[id])
		}
	}
}

func TestSelectReturnsErrNoHealthyTargetsWhenEmpty(t *testing.T) {
	b := New(domain.StrategyRoundRobin, DefaultBreakerConfig())
	if _, err := b.Select(""); err != ErrNoHealthyTargets {
		t.Fatalf("expected ErrNoHealthyTargets, got %v", err)
	}
}

func TestLeastConnectionsPrefersIdleTarget(t *testing.T) {
	b := New(domain.StrategyLeastConnections, DefaultBreakerConfig())
	b.Put("busy", 1)
	b.Put("idle", 1)
	b.UpdateTargetStatus("busy", true, 0.5, 10, time.Millisecond)
	b.UpdateTargetStatus("idle", true, 0.0, 0, time.Millisecond)

	id, err := b.Select("")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if id != "idle" {
		t.Fatalf("expected idle target selected, got %s", id)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cfg := BreakerConfig{FailureThreshold: 3, SuccessThreshold: 1, RecoveryTime: time.Hour}
	b := New(domain.StrategyRoundRobin, cfg)
	b.Put("x", 1)

	for i := 0; i < 3; i++ {
		b.UpdateTargetStatus("x", false, 0, 0, 0)
	}

	snap := b.Snapshot()
	if snap[0].Circuit != domain.CircuitOpen {
		t.Fatalf("expected circuit open, got %s", snap[0].Circuit)
	}
	if _, err := b.Select(""); err != ErrNoHealthyTargets {
		t.Fatalf("expected open breaker to exclude target from selection, got %v", err)
	}
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	cfg := BreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, RecoveryTime: time.Millisecond}
	b := New(domain.StrategyRoundRobin, cfg)
	b.Put("x", 1)
	b.UpdateTargetStatus("x", false, 0, 0, 0)

	time.Sleep(5 * time.Millisecond)
	b.PromoteHalfOpen()
	b.UpdateTargetStatus("x", true, 0, 0, 0)

	snap := b.Snapshot()
	if snap[0].Circuit != domain.CircuitClosed {
		t.Fatalf("expected circuit closed after successful probe, got %s", snap[0].Circuit)
	}
}

func TestConsistentHashStableForSameKey(t *testing.T) {
	b := New(domain.StrategyConsistentHash, DefaultBreakerConfig())
	b.Put("a", 1)
	b.Put("b", 2)
	b.Put("c", 1)

	first, err := b.Select("user-42")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	for i := 0; i < 5; i++ {
		id, err := b.Select("user-42")
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		if id != first {
			t.Fatalf("expected stable routing for same key, got %s then %s", first, id)
		}
	}
}
