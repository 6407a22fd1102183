package instance

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/fluxfaas/fluxfaas/internal/compiler"
	"github.com/fluxfaas/fluxfaas/internal/domain"
	"github.com/fluxfaas/fluxfaas/internal/sandbox"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	ccfg := compiler.DefaultConfig()
	ccfg.ScratchDir = t.TempDir()
	c := compiler.New(ccfg, nil)
	sb := sandbox.New(sandbox.DefaultConfig(), nil)
	cfg := DefaultConfig()
	cfg.MaxIdleDuration = 10 * time.Millisecond
	cfg.CleanupInterval = 5 * time.Millisecond
	m := New(cfg, c, sb)
	t.Cleanup(m.Close)
	return m
}

func TestCreateInterpretedReachesReady(t *testing.T) {
	m := newTestManager(t)
	spec, err := domain.NewFunctionSpec("double", "def handler(event):\n    return event[\"n\"] * 2\n", domain.ScriptPython, time.Second)
	if err != nil {
		t.Fatalf("NewFunctionSpec: %v", err)
	}

	id, err := m.Create(context.Background(), spec)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	list := m.List("double")
	if len(list) != 1 {
		t.Fatalf("expected one instance, got %d", len(list))
	}
	if list[0].Phase != domain.PhaseReady {
		t.Fatalf("expected Ready phase, got %s", list[0].Phase)
	}
	if list[0].ID != id {
		t.Fatalf("id mismatch")
	}
}

func TestExecuteRejectsInvalidPhase(t *testing.T) {
	m := newTestManager(t)
	spec, err := domain.NewFunctionSpec("f", "def handler(event):\n    return event\n", domain.ScriptPython, time.Second)
	if err != nil {
		t.Fatalf("NewFunctionSpec: %v", err)
	}
	id, err := m.Create(context.Background(), spec)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := m.Stop(id); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	_, err = m.Execute(context.Background(), id, domain.ScriptPython, json.RawMessage(`{}`))
	if domain.KindOf(err) != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound after Stop, got %v", err)
	}
}

func TestEventsRecordsLifecycleTransitions(t *testing.T) {
	m := newTestManager(t)
	spec, err := domain.NewFunctionSpec("f", "def handler(event):\n    return event\n", domain.ScriptPython, time.Second)
	if err != nil {
		t.Fatalf("NewFunctionSpec: %v", err)
	}
	if _, err := m.Create(context.Background(), spec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	events := m.Events(10)
	if len(events) < 2 {
		t.Fatalf("expected at least Created+Ready events, got %d", len(events))
	}
	if events[0].Kind != domain.EventCreated {
		t.Fatalf("expected first event Created, got %s", events[0].Kind)
	}
}

func TestCleanupIdleStopsExpiredInstances(t *testing.T) {
	m := newTestManager(t)
	spec, err := domain.NewFunctionSpec("f", "def handler(event):\n    return event\n", domain.ScriptPython, time.Second)
	if err != nil {
		t.Fatalf("NewFunctionSpec: %v", err)
	}
	id, err := m.Create(context.Background(), spec)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	rec, _ := m.get(id)
	rec.mu.Lock()
	rec.instance.Phase = domain.PhaseIdle
	rec.instance.LastActivity = time.Now().Add(-time.Hour)
	rec.mu.Unlock()

	m.CleanupIdle()

	if len(m.List("f")) != 0 {
		t.Fatalf("expected idle instance to be stopped")
	}
}
