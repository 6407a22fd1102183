package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsInternallyConsistent(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Pool.Min > cfg.Pool.Max {
		t.Fatalf("default pool Min %d exceeds Max %d", cfg.Pool.Min, cfg.Pool.Max)
	}
	if cfg.Pool.ScaleUpThreshold <= cfg.Pool.ScaleDownThreshold {
		t.Fatalf("scale up threshold must exceed scale down threshold")
	}
	if cfg.Compiler.MaxCacheEntries <= 0 {
		t.Fatalf("expected a positive cache size")
	}
}

func TestLoadFromFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	body := `{"daemon":{"grpc_addr":":7000"},"pool":{"max_instances":9}}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Daemon.GRPCAddr != ":7000" {
		t.Fatalf("expected overridden grpc addr, got %q", cfg.Daemon.GRPCAddr)
	}
	if cfg.Pool.Max != 9 {
		t.Fatalf("expected overridden pool max, got %d", cfg.Pool.Max)
	}
	if cfg.Compiler.MaxCacheEntries != DefaultConfig().Compiler.MaxCacheEntries {
		t.Fatalf("expected fields absent from the file to keep their default")
	}
}

func TestLoadFromFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	body := "daemon:\n  log_level: debug\nload_balancer:\n  strategy: least_connections\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Daemon.LogLevel != "debug" {
		t.Fatalf("expected overridden log level, got %q", cfg.Daemon.LogLevel)
	}
	if string(cfg.LoadBalancer.Strategy) != "least_connections" {
		t.Fatalf("expected overridden strategy, got %q", cfg.LoadBalancer.Strategy)
	}
}

func TestLoadFromEnvOverridesDefaults(t *testing.T) {
	t.Setenv("FLUXFAAS_GRPC_ADDR", ":8888")
	t.Setenv("FLUXFAAS_POOL_MAX", "12")
	t.Setenv("FLUXFAAS_COMPILER_TIMEOUT", "45s")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	if cfg.Daemon.GRPCAddr != ":8888" {
		t.Fatalf("expected env override of grpc addr, got %q", cfg.Daemon.GRPCAddr)
	}
	if cfg.Pool.Max != 12 {
		t.Fatalf("expected env override of pool max, got %d", cfg.Pool.Max)
	}
	if cfg.Compiler.CompileTimeout != 45*time.Second {
		t.Fatalf("expected env override of compile timeout, got %v", cfg.Compiler.CompileTimeout)
	}
}
