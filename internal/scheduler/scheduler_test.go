package scheduler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/fluxfaas/fluxfaas/internal/compiler"
	"github.com/fluxfaas/fluxfaas/internal/domain"
	"github.com/fluxfaas/fluxfaas/internal/instance"
	"github.com/fluxfaas/fluxfaas/internal/pool"
	"github.com/fluxfaas/fluxfaas/internal/registry"
	"github.com/fluxfaas/fluxfaas/internal/sandbox"
)

func newTestScheduler(t *testing.T) (*Scheduler, *domain.FunctionSpec) {
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

	reg := registry.New()
	pm := pool.New(im)
	return New(reg, pm), spec
}

func TestInvokeUnregisteredNameReturnsNotFound(t *testing.T) {
	s, _ := newTestScheduler(t)
	if _, err := s.Invoke(context.Background(), "missing", json.RawMessage(`{}`)); domain.KindOf(err) != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRegisterThenInvokeCreatesPoolOnFirstUse(t *testing.T) {
	s, spec := newTestScheduler(t)
	if err := s.Register(spec, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}

	resp, err := s.Invoke(context.Background(), spec.Name, json.RawMessage(`{"n":1}`))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !resp.ColdStart {
		t.Fatalf("expected cold start on first invoke")
	}
	if resp.RequestID == "" {
		t.Fatalf("expected a generated request id")
	}

	resp2, err := s.Invoke(context.Background(), spec.Name, json.RawMessage(`{"n":2}`))
	if err != nil {
		t.Fatalf("second Invoke: %v", err)
	}
	if resp2.ColdStart {
		t.Fatalf("expected warm path on second invoke")
	}
}

func TestUnregisterStopsPoolAndBlocksFurtherInvoke(t *testing.T) {
	s, spec := newTestScheduler(t)
	if err := s.Register(spec, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := s.Invoke(context.Background(), spec.Name, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	if err := s.Unregister(spec.Name); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if _, err := s.Invoke(context.Background(), spec.Name, json.RawMessage(`{}`)); domain.KindOf(err) != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound after Unregister, got %v", err)
	}
}
