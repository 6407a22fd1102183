package registry

import (
	"testing"
	"time"

	"github.com/fluxfaas/fluxfaas/internal/domain"
)

func TestRegisterThenGetRoundTrips(t *testing.T) {
	r := New()
	spec, err := domain.NewFunctionSpec("add", "fn add(a,b) { a + b }", domain.ScriptRust, time.Second)
	if err != nil {
		t.Fatalf("NewFunctionSpec: %v", err)
	}
	if err := r.Register(spec); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, err := r.Get("add")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != spec.ID {
		t.Fatalf("expected id %s, got %s", spec.ID, got.ID)
	}
}

func TestGetUnknownNameReturnsNotFound(t *testing.T) {
	r := New()
	if _, err := r.Get("missing"); domain.KindOf(err) != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUnregisterRemovesSpec(t *testing.T) {
	r := New()
	spec, _ := domain.NewFunctionSpec("f", "return input", domain.ScriptJavaScript, time.Second)
	r.Register(spec)

	if err := r.Unregister("f"); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if _, err := r.Get("f"); domain.KindOf(err) != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound after Unregister, got %v", err)
	}
	if err := r.Unregister("f"); domain.KindOf(err) != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound on double Unregister, got %v", err)
	}
}
