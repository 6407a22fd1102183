// Package scheduler implements the control-plane Scheduler API: the
// facade the gateway calls to register/unregister functions and invoke
// them, wiring the Registry (name directory), Pool Manager (C5) and
// Instance Manager (C4) together. On first invoke of a registered name
// with no pool yet, it creates one from the function's PoolConfig (or
// defaults) before delegating to pool.Execute.
//
// Invoke is additionally guarded by a per-function sliding-window
// circuit breaker (internal/circuitbreaker), distinct from the
// per-target consecutive-failure breaker internal/lb runs inside the
// pool: the lb breaker pulls one bad instance out of rotation, while
// this one trips when a function's targets are failing in aggregate,
// rejecting fast instead of letting every request hit a doomed pool.
package scheduler

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fluxfaas/fluxfaas/internal/circuitbreaker"
	"github.com/fluxfaas/fluxfaas/internal/domain"
	"github.com/fluxfaas/fluxfaas/internal/metrics"
	"github.com/fluxfaas/fluxfaas/internal/pool"
	"github.com/fluxfaas/fluxfaas/internal/registry"
)

// DefaultBreakerConfig trips a function's breaker once 34% or more of its
// invocations fail within a 30s window, giving it 15s to recover before
// probing again.
var DefaultBreakerConfig = circuitbreaker.Config{
	ErrorPct:       34,
	WindowDuration: 30 * time.Second,
	OpenDuration:   15 * time.Second,
	HalfOpenProbes: 1,
}

// Scheduler is the Scheduler API's implementation.
type Scheduler struct {
	registry *registry.Registry
	pools    *pool.Manager
	breakers *circuitbreaker.Registry

	mu         sync.Mutex
	poolConfig map[string]domain.PoolConfig // per-function override; falls back to DefaultPoolConfig
}

// New creates a Scheduler bound to a Registry and pool Manager.
func New(reg *registry.Registry, pools *pool.Manager) *Scheduler {
	return &Scheduler{
		registry:   reg,
		pools:      pools,
		breakers:   circuitbreaker.NewRegistry(),
		poolConfig: make(map[string]domain.PoolConfig),
	}
}

// Register adds spec to the registry and records its pool configuration
// (or the default) for first-use pool creation. It does not eagerly
// create a pool: a function may be registered long before its first
// invocation.
func (s *Scheduler) Register(spec *domain.FunctionSpec, cfg *domain.PoolConfig) error {
	if err := s.registry.Register(spec); err != nil {
		return err
	}
	resolved := domain.DefaultPoolConfig()
	if cfg != nil {
		resolved = *cfg
	}
	s.mu.Lock()
	s.poolConfig[spec.Name] = resolved
	s.mu.Unlock()
	return nil
}

// Unregister removes name from the registry and stops its pool, if one
// exists.
func (s *Scheduler) Unregister(name string) error {
	if err := s.registry.Unregister(name); err != nil {
		return err
	}
	if fp, ok := s.pools.Pool(name); ok {
		fp.Stop()
	}
	s.breakers.Remove(name)
	s.mu.Lock()
	delete(s.poolConfig, name)
	s.mu.Unlock()
	return nil
}

// List returns every registered function.
func (s *Scheduler) List() []*domain.FunctionSpec {
	return s.registry.List()
}

// Invoke resolves name to its pool — creating one on first use — and
// executes input against it, returning the gateway-facing InvokeResponse
// envelope.
func (s *Scheduler) Invoke(ctx context.Context, name string, input json.RawMessage) (*domain.InvokeResponse, error) {
	spec, err := s.registry.Get(name)
	if err != nil {
		return nil, err
	}

	breaker := s.breakers.Get(name, DefaultBreakerConfig)
	if breaker != nil && !breaker.Allow() {
		return nil, breaker.OpenError()
	}

	fp, ok := s.pools.Pool(name)
	coldStart := !ok
	if !ok {
		s.mu.Lock()
		cfg, hasCfg := s.poolConfig[name]
		s.mu.Unlock()
		if !hasCfg {
			cfg = domain.DefaultPoolConfig()
		}
		fp, err = s.pools.CreatePool(ctx, spec, cfg)
		if err != nil {
			return nil, err
		}
	}

	start := time.Now()
	rec, execErr := fp.Execute(ctx, spec.ScriptKind, input, "")
	durationMs := time.Since(start).Milliseconds()
	resp := &domain.InvokeResponse{
		RequestID:  newRequestID(),
		DurationMs: durationMs,
		ColdStart:  coldStart,
	}
	if execErr != nil {
		resp.Error = execErr.Error()
		if breaker != nil {
			breaker.RecordFailure()
		}
		metrics.Global().RecordInvocationWithDetails(spec.ID, spec.Name, string(spec.ScriptKind), durationMs, coldStart, false)
		return resp, execErr
	}
	resp.Output = rec.Output
	success := rec.Status == domain.StatusSuccess
	if !success {
		resp.Error = string(rec.Status)
	}
	if breaker != nil {
		if success {
			breaker.RecordSuccess()
		} else {
			breaker.RecordFailure()
		}
	}
	metrics.Global().RecordInvocationWithDetails(spec.ID, spec.Name, string(spec.ScriptKind), durationMs, coldStart, success)
	return resp, nil
}

func newRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return ""
	}
	return id.String()
}
