package autoscaler

import (
	"context"
	"testing"
	"time"

	"github.com/fluxfaas/fluxfaas/internal/compiler"
	"github.com/fluxfaas/fluxfaas/internal/domain"
	"github.com/fluxfaas/fluxfaas/internal/instance"
	"github.com/fluxfaas/fluxfaas/internal/pool"
	"github.com/fluxfaas/fluxfaas/internal/sandbox"
)

func newTestPoolManager(t *testing.T) (*pool.Manager, *domain.FunctionSpec) {
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
	return pool.New(im), spec
}

func TestEvaluateScalesUpWhenAboveThreshold(t *testing.T) {
	m, spec := newTestPoolManager(t)
	cfg := domain.DefaultPoolConfig()
	cfg.Target = 1
	cfg.Max = 3
	cfg.ScaleUpThreshold = -1 // avg_load (0) is always above this, forcing the branch
	cfg.ScaleUpCooldown = 0

	fp, err := m.CreatePool(context.Background(), spec, cfg)
	if err != nil {
		t.Fatalf("CreatePool: %v", err)
	}

	as := New(m, time.Hour)
	as.evaluate(context.Background())

	if fp.HealthyCount() != 2 {
		t.Fatalf("expected one instance added by evaluate, got %d healthy", fp.HealthyCount())
	}
}

func TestEvaluateRespectsMinOnLowLoad(t *testing.T) {
	m, spec := newTestPoolManager(t)
	cfg := domain.DefaultPoolConfig()
	cfg.Target = 1
	cfg.Min = 1
	cfg.ScaleDownThreshold = 0.9 // avg_load (0) is always below this
	cfg.ScaleDownCooldown = 0

	fp, err := m.CreatePool(context.Background(), spec, cfg)
	if err != nil {
		t.Fatalf("CreatePool: %v", err)
	}

	as := New(m, time.Hour)
	as.evaluate(context.Background())

	if fp.HealthyCount() != 1 {
		t.Fatalf("expected Min=1 floor to hold, got %d healthy", fp.HealthyCount())
	}
}
