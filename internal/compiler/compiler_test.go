package compiler

import (
	"context"
	"testing"
	"time"

	"github.com/fluxfaas/fluxfaas/internal/domain"
)

func newTestCompiler(t *testing.T) *Compiler {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ScratchDir = t.TempDir()
	cfg.MaxCacheEntries = 2
	return New(cfg, nil)
}

func TestCompileInterpretedBypassesCargo(t *testing.T) {
	c := newTestCompiler(t)
	spec, err := domain.NewFunctionSpec("echo", "export default (e) => e;", domain.ScriptJavaScript, time.Second)
	if err != nil {
		t.Fatalf("NewFunctionSpec: %v", err)
	}

	a, err := c.Compile(context.Background(), spec)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !a.Interpreted {
		t.Fatalf("expected interpreted artifact, got compiled one: %+v", a)
	}
	if a.Source != spec.Source {
		t.Fatalf("interpreted artifact lost source text")
	}
}

func TestCompileMemoizesOnSourceHash(t *testing.T) {
	c := newTestCompiler(t)
	spec, err := domain.NewFunctionSpec("echo", "export default (e) => e;", domain.ScriptJavaScript, time.Second)
	if err != nil {
		t.Fatalf("NewFunctionSpec: %v", err)
	}

	a1, err := c.Compile(context.Background(), spec)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	a2, err := c.Compile(context.Background(), spec)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if a1.SourceHash != a2.SourceHash {
		t.Fatalf("expected identical source hash across calls")
	}
	if len(c.cache) != 1 {
		t.Fatalf("expected a single cache entry, got %d", len(c.cache))
	}
}

func TestEvictionBoundsCacheSize(t *testing.T) {
	c := newTestCompiler(t)
	for i := 0; i < 5; i++ {
		spec, err := domain.NewFunctionSpec("fn", "body"+string(rune('a'+i)), domain.ScriptPython, time.Second)
		if err != nil {
			t.Fatalf("NewFunctionSpec: %v", err)
		}
		if _, err := c.Compile(context.Background(), spec); err != nil {
			t.Fatalf("Compile: %v", err)
		}
	}
	if len(c.cache) > c.cfg.MaxCacheEntries {
		t.Fatalf("cache grew past MaxCacheEntries: %d > %d", len(c.cache), c.cfg.MaxCacheEntries)
	}
}

func TestCheckSupportReportsMissingToolchain(t *testing.T) {
	c := newTestCompiler(t)
	// This only asserts the error shape; whether cargo is actually present
	// on the test host is environment-dependent.
	err := c.CheckSupport()
	if err != nil && domain.KindOf(err) != domain.ErrToolchainMissing {
		t.Fatalf("expected ErrToolchainMissing, got %v", domain.KindOf(err))
	}
}
