// Package pool implements the FluxFaaS pool & auto-scaler (C5): a
// per-function set of instance ids bound to min/max/target sizing and
// scale-up/scale-down hysteresis, fronted by a C6 load balancer.
//
// # Design rationale
//
// Cold-starting a function (compile + first warm) costs real latency.
// A FunctionPool keeps a warm set of instances alive between
// invocations and only grows or shrinks it on the auto-scaler's
// schedule, not per-request, so request latency never pays a scaling
// decision's cost.
//
// # Concurrency model
//
// Each FunctionPool has its own mutex guarding its target-id set,
// sizing bookkeeping (cooldown timestamps, scaling history) and paused
// flag. The embedded lb.Balancer has its own lock for target state
// (active connections, load, breaker); selection never holds the
// FunctionPool's lock across a child spawn or instance.Manager call.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fluxfaas/fluxfaas/internal/domain"
	"github.com/fluxfaas/fluxfaas/internal/instance"
	"github.com/fluxfaas/fluxfaas/internal/lb"
	"github.com/fluxfaas/fluxfaas/internal/logging"
	"github.com/fluxfaas/fluxfaas/internal/metrics"
)

// Stats is a snapshot of one pool's sizing and target state, returned by
// GetStats.
type Stats struct {
	FunctionName  string                     `json:"function_name"`
	HealthyCount  int                        `json:"healthy_count"`
	Config        domain.PoolConfig          `json:"config"`
	Paused        bool                       `json:"paused"`
	Targets       []domain.LoadBalanceTarget `json:"targets"`
	ScalingEvents []domain.ScalingEvent      `json:"scaling_events"`
}

// FunctionPool owns every instance id bound to one function name plus
// its balancer and scaling policy.
type FunctionPool struct {
	name     string
	spec     *domain.FunctionSpec
	cfg      domain.PoolConfig
	instance *instance.Manager
	balancer *lb.Balancer

	mu            sync.Mutex
	instanceIDs   map[string]struct{}
	paused        bool
	lastScaleUp   time.Time
	lastScaleDown time.Time
	scalingEvents []domain.ScalingEvent
}

// Manager is the top-level collaborator the Scheduler API calls to
// manage every function's pool. One FunctionPool exists per function
// name.
type Manager struct {
	instance *instance.Manager
	mu       sync.RWMutex
	pools    map[string]*FunctionPool
}

// New creates a pool Manager bound to the Instance Manager it will
// create and stop instances through.
func New(im *instance.Manager) *Manager {
	return &Manager{instance: im, pools: make(map[string]*FunctionPool)}
}

// CreatePool allocates a FunctionPool for spec, warms Target instances
// concurrently via errgroup, and registers them with the pool's balancer,
// which is created on the first call for a function name. Calling
// CreatePool again for the same name replaces the pool's config, keeps its
// balancer and live instances, and warms more instances only if the pool
// holds fewer than the new Target.
func (m *Manager) CreatePool(ctx context.Context, spec *domain.FunctionSpec, cfg domain.PoolConfig) (*FunctionPool, error) {
	if cfg.Target == 0 {
		cfg = domain.DefaultPoolConfig()
	}

	m.mu.Lock()
	fp, exists := m.pools[spec.Name]
	if !exists {
		fp = &FunctionPool{
			name:        spec.Name,
			instance:    m.instance,
			instanceIDs: make(map[string]struct{}),
			balancer:    lb.New(cfg.BalanceStrategy, lb.DefaultBreakerConfig()),
		}
		m.pools[spec.Name] = fp
	}
	fp.spec = spec
	fp.cfg = cfg
	m.mu.Unlock()

	if err := fp.warmUpTo(ctx, cfg.Target); err != nil {
		return fp, err
	}
	return fp, nil
}

// Pool returns the FunctionPool for name, if one has been created.
func (m *Manager) Pool(name string) (*FunctionPool, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fp, ok := m.pools[name]
	return fp, ok
}

// All returns every known pool, for the auto-scaler's evaluation tick.
func (m *Manager) All() []*FunctionPool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*FunctionPool, 0, len(m.pools))
	for _, fp := range m.pools {
		out = append(out, fp)
	}
	return out
}

// warmUpTo creates and warms instances until the pool holds n
// (fanning the compiles/warms out concurrently so scaling up by N
// instances costs one cold start's latency, not N sequential ones).
func (fp *FunctionPool) warmUpTo(ctx context.Context, n int) error {
	fp.mu.Lock()
	need := n - len(fp.instanceIDs)
	fp.mu.Unlock()
	if need <= 0 {
		return nil
	}

	ids := make([]string, need)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < need; i++ {
		i := i
		g.Go(func() error {
			id, err := fp.instance.Create(gctx, fp.spec)
			if err != nil {
				return err
			}
			if err := fp.instance.Warm(gctx, id); err != nil {
				return err
			}
			ids[i] = id
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.Wrap(domain.ErrInternal, err)
	}

	fp.mu.Lock()
	for _, id := range ids {
		fp.instanceIDs[id] = struct{}{}
	}
	fp.mu.Unlock()
	for _, id := range ids {
		fp.balancer.Put(id, 1)
	}
	return nil
}

// ScaleUp adds up to n new instances, bounded by Max and gated by
// ScaleUpCooldown. Returns the number actually added.
func (fp *FunctionPool) ScaleUp(ctx context.Context, n int) (int, error) {
	fp.mu.Lock()
	if fp.paused {
		fp.mu.Unlock()
		return 0, fmt.Errorf("pool %s is paused", fp.name)
	}
	if time.Since(fp.lastScaleUp) < fp.cfg.ScaleUpCooldown {
		fp.mu.Unlock()
		return 0, nil
	}
	room := fp.cfg.Max - len(fp.instanceIDs)
	fp.mu.Unlock()
	if room <= 0 {
		return 0, nil
	}
	if n > room {
		n = room
	}

	before := fp.HealthyCount()
	if err := fp.warmUpTo(ctx, before+n); err != nil {
		return 0, err
	}

	fp.mu.Lock()
	fp.lastScaleUp = time.Now()
	after := len(fp.instanceIDs)
	fp.mu.Unlock()
	fp.recordScalingEvent(domain.ScaleUp, before, after, "avg_load above threshold")
	metrics.Global().RecordScaleEvent(fp.name, "up")
	metrics.Global().SetPoolSize(fp.name, after, fp.AvgLoad())
	return after - before, nil
}

// ScaleDown removes up to n instances, never one with live active
// connections, preferring the lowest-load instance first, bounded by
// Min and gated by ScaleDownCooldown.
func (fp *FunctionPool) ScaleDown(n int) (int, error) {
	fp.mu.Lock()
	if fp.paused {
		fp.mu.Unlock()
		return 0, fmt.Errorf("pool %s is paused", fp.name)
	}
	if time.Since(fp.lastScaleDown) < fp.cfg.ScaleDownCooldown {
		fp.mu.Unlock()
		return 0, nil
	}
	room := len(fp.instanceIDs) - fp.cfg.Min
	fp.mu.Unlock()
	if room <= 0 {
		return 0, nil
	}
	if n > room {
		n = room
	}

	candidates := fp.balancer.Snapshot()
	removable := make([]domain.LoadBalanceTarget, 0, len(candidates))
	for _, t := range candidates {
		if t.ActiveConnections == 0 {
			removable = append(removable, t)
		}
	}
	sortByLoadAscending(removable)
	if n > len(removable) {
		n = len(removable)
	}

	before := fp.HealthyCount()
	for i := 0; i < n; i++ {
		id := removable[i].InstanceID
		if err := fp.instance.Stop(id); err != nil {
			logging.Op().Warn("pool scale-down failed to stop instance", "function", fp.name, "instance", id, "error", err)
			continue
		}
		fp.balancer.Remove(id)
		fp.mu.Lock()
		delete(fp.instanceIDs, id)
		fp.mu.Unlock()
	}

	fp.mu.Lock()
	fp.lastScaleDown = time.Now()
	after := len(fp.instanceIDs)
	fp.mu.Unlock()
	fp.recordScalingEvent(domain.ScaleDown, before, after, "avg_load below threshold")
	metrics.Global().RecordScaleEvent(fp.name, "down")
	metrics.Global().SetPoolSize(fp.name, after, fp.AvgLoad())
	return before - after, nil
}

func sortByLoadAscending(targets []domain.LoadBalanceTarget) {
	for i := 1; i < len(targets); i++ {
		for j := i; j > 0 && targets[j].CurrentLoad < targets[j-1].CurrentLoad; j-- {
			targets[j], targets[j-1] = targets[j-1], targets[j]
		}
	}
}

func (fp *FunctionPool) recordScalingEvent(kind domain.ScalingEventKind, before, after int, reason string) {
	ev := domain.ScalingEvent{Kind: kind, Before: before, After: after, Reason: reason, Timestamp: time.Now()}
	fp.mu.Lock()
	fp.scalingEvents = append(fp.scalingEvents, ev)
	if len(fp.scalingEvents) > domain.MaxScalingEvents {
		fp.scalingEvents = fp.scalingEvents[len(fp.scalingEvents)-domain.MaxScalingEvents:]
	}
	fp.mu.Unlock()
	logging.Op().Info("pool scaling event", "function", fp.name, "kind", kind, "before", before, "after", after)
}

// Execute asks C6 for a target, tracks its active-connection gauge
// around the call, and delegates to the Instance Manager.
func (fp *FunctionPool) Execute(ctx context.Context, kind domain.ScriptKind, input []byte, key string) (*domain.ExecutionRecord, error) {
	targetID, err := fp.balancer.Select(key)
	if err != nil {
		return nil, domain.NewError(domain.ErrNotFound, "no healthy instances available").WithCause(err)
	}

	fp.trackActive(targetID, 1)
	start := time.Now()
	rec, execErr := fp.instance.Execute(ctx, targetID, kind, input)
	fp.trackActive(targetID, -1)

	ok := execErr == nil && rec != nil && rec.Status == domain.StatusSuccess
	load := fp.loadFor(targetID)
	fp.balancer.UpdateTargetStatus(targetID, ok, load, fp.activeConnsFor(targetID), time.Since(start))
	return rec, execErr
}

func (fp *FunctionPool) trackActive(targetID string, delta int64) {
	fp.balancer.AddActiveConnections(targetID, delta)
}

func (fp *FunctionPool) loadFor(targetID string) float64 {
	nominal := fp.cfg.NominalConcurrency
	if nominal <= 0 {
		nominal = 1
	}
	return float64(fp.activeConnsFor(targetID)) / float64(nominal)
}

func (fp *FunctionPool) activeConnsFor(targetID string) int64 {
	for _, t := range fp.balancer.Snapshot() {
		if t.InstanceID == targetID {
			return t.ActiveConnections
		}
	}
	return 0
}

// HealthyCount returns the number of instances currently marked healthy
// in the balancer.
func (fp *FunctionPool) HealthyCount() int {
	n := 0
	for _, t := range fp.balancer.Snapshot() {
		if t.Healthy {
			n++
		}
	}
	return n
}

// AvgLoad computes the auto-scaler's avg_load metric: mean current_load
// over healthy instances, each capped at 1.0.
func (fp *FunctionPool) AvgLoad() float64 {
	snap := fp.balancer.Snapshot()
	if len(snap) == 0 {
		return 0
	}
	var sum float64
	healthy := 0
	for _, t := range snap {
		if !t.Healthy {
			continue
		}
		load := t.CurrentLoad
		if load > 1.0 {
			load = 1.0
		}
		sum += load
		healthy++
	}
	if healthy == 0 {
		return 0
	}
	return sum / float64(healthy)
}

// RefreshHealth queries C4 for every known instance's phase and updates
// the balancer's healthy flag, and promotes any Open breaker whose
// recovery time has elapsed. Called by the health loop on
// HealthCheckInterval.
func (fp *FunctionPool) RefreshHealth() {
	fp.balancer.PromoteHalfOpen()
	fp.mu.Lock()
	ids := make([]string, 0, len(fp.instanceIDs))
	for id := range fp.instanceIDs {
		ids = append(ids, id)
	}
	fp.mu.Unlock()

	list := fp.instance.List(fp.name)
	byID := make(map[string]domain.Phase, len(list))
	for _, inst := range list {
		byID[inst.ID] = inst.Phase
	}
	for _, id := range ids {
		phase, ok := byID[id]
		healthy := ok && phase != domain.PhaseError
		fp.balancer.SetHealthy(id, healthy)
	}
	metrics.Global().SetPoolSize(fp.name, fp.HealthyCount(), fp.AvgLoad())
}

// Config returns the pool's current sizing and strategy configuration.
func (fp *FunctionPool) Config() domain.PoolConfig {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.cfg
}

// Name returns the function name this pool is bound to.
func (fp *FunctionPool) Name() string { return fp.name }

// Pause stops the pool from accepting ScaleUp/ScaleDown, e.g. during a
// function version rollover. Execute remains allowed.
func (fp *FunctionPool) Pause() {
	fp.mu.Lock()
	fp.paused = true
	fp.mu.Unlock()
}

// Resume re-enables scaling.
func (fp *FunctionPool) Resume() {
	fp.mu.Lock()
	fp.paused = false
	fp.mu.Unlock()
}

// Stop tears down every instance in the pool.
func (fp *FunctionPool) Stop() {
	fp.mu.Lock()
	ids := make([]string, 0, len(fp.instanceIDs))
	for id := range fp.instanceIDs {
		ids = append(ids, id)
	}
	fp.instanceIDs = make(map[string]struct{})
	fp.mu.Unlock()

	for _, id := range ids {
		if err := fp.instance.Stop(id); err != nil {
			logging.Op().Warn("pool stop failed to stop instance", "function", fp.name, "instance", id, "error", err)
		}
		fp.balancer.Remove(id)
	}
}

// GetStats returns a snapshot of the pool's sizing and target state.
func (fp *FunctionPool) GetStats() Stats {
	fp.mu.Lock()
	cfg := fp.cfg
	paused := fp.paused
	events := make([]domain.ScalingEvent, len(fp.scalingEvents))
	copy(events, fp.scalingEvents)
	fp.mu.Unlock()

	return Stats{
		FunctionName:  fp.name,
		HealthyCount:  fp.HealthyCount(),
		Config:        cfg,
		Paused:        paused,
		Targets:       fp.balancer.Snapshot(),
		ScalingEvents: events,
	}
}
