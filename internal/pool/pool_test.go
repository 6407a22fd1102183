package pool

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/fluxfaas/fluxfaas/internal/compiler"
	"github.com/fluxfaas/fluxfaas/internal/domain"
	"github.com/fluxfaas/fluxfaas/internal/instance"
	"github.com/fluxfaas/fluxfaas/internal/sandbox"
)

func newTestManager(t *testing.T) (*Manager, *domain.FunctionSpec) {
	t.Helper()
	ccfg := compiler.DefaultConfig()
	ccfg.ScratchDir = t.TempDir()
	c := compiler.New(ccfg, nil)
	sb := sandbox.New(sandbox.DefaultConfig(), nil)
	im := instance.New(instance.DefaultConfig(), c, sb)
	t.Cleanup(im.Close)

	spec, err := domain.NewFunctionSpec("echo", "def handler(event):\n    return event\n", domain.ScriptPython, time.Second)
	if err != nil {
		t.Fatalf("NewFunctionSpec: %v", err)
	}
	return New(im), spec
}

func TestCreatePoolWarmsTargetInstances(t *testing.T) {
	m, spec := newTestManager(t)
	cfg := domain.DefaultPoolConfig()
	cfg.Target = 3

	fp, err := m.CreatePool(context.Background(), spec, cfg)
	if err != nil {
		t.Fatalf("CreatePool: %v", err)
	}
	if fp.HealthyCount() != 3 {
		t.Fatalf("expected 3 healthy instances, got %d", fp.HealthyCount())
	}
}

func TestScaleUpRespectsMaxAndCooldown(t *testing.T) {
	m, spec := newTestManager(t)
	cfg := domain.DefaultPoolConfig()
	cfg.Target = 1
	cfg.Max = 2
	cfg.ScaleUpCooldown = time.Hour

	fp, err := m.CreatePool(context.Background(), spec, cfg)
	if err != nil {
		t.Fatalf("CreatePool: %v", err)
	}

	added, err := fp.ScaleUp(context.Background(), 5)
	if err != nil {
		t.Fatalf("ScaleUp: %v", err)
	}
	if added != 1 {
		t.Fatalf("expected to add exactly 1 (bounded by Max=2), got %d", added)
	}

	added, err = fp.ScaleUp(context.Background(), 1)
	if err != nil {
		t.Fatalf("ScaleUp: %v", err)
	}
	if added != 0 {
		t.Fatalf("expected cooldown to block further scale-up, got %d added", added)
	}
}

func TestScaleDownRespectsMin(t *testing.T) {
	m, spec := newTestManager(t)
	cfg := domain.DefaultPoolConfig()
	cfg.Target = 2
	cfg.Min = 2
	cfg.ScaleDownCooldown = 0

	fp, err := m.CreatePool(context.Background(), spec, cfg)
	if err != nil {
		t.Fatalf("CreatePool: %v", err)
	}

	removed, err := fp.ScaleDown(1)
	if err != nil {
		t.Fatalf("ScaleDown: %v", err)
	}
	if removed != 0 {
		t.Fatalf("expected Min floor to block scale-down, got %d removed", removed)
	}
}

func TestExecuteRoutesThroughBalancer(t *testing.T) {
	m, spec := newTestManager(t)
	cfg := domain.DefaultPoolConfig()
	cfg.Target = 2

	fp, err := m.CreatePool(context.Background(), spec, cfg)
	if err != nil {
		t.Fatalf("CreatePool: %v", err)
	}

	rec, err := fp.Execute(context.Background(), domain.ScriptPython, json.RawMessage(`{"x":1}`), "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if rec.Status != domain.StatusSuccess {
		t.Fatalf("expected success, got %s", rec.Status)
	}
}

func TestGetStatsReflectsPoolConfig(t *testing.T) {
	m, spec := newTestManager(t)
	cfg := domain.DefaultPoolConfig()
	cfg.Target = 1

	fp, err := m.CreatePool(context.Background(), spec, cfg)
	if err != nil {
		t.Fatalf("CreatePool: %v", err)
	}
	stats := fp.GetStats()
	if stats.FunctionName != "echo" {
		t.Fatalf("expected function name echo, got %s", stats.FunctionName)
	}
	if stats.HealthyCount != 1 {
		t.Fatalf("expected 1 healthy instance, got %d", stats.HealthyCount)
	}
}
