// Package instance implements the FluxFaaS instance manager (C4): the
// sole owner of every domain.Instance record and the state machine that
// drives a sandboxed process through its lifecycle.
package instance

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fluxfaas/fluxfaas/internal/compiler"
	"github.com/fluxfaas/fluxfaas/internal/domain"
	"github.com/fluxfaas/fluxfaas/internal/logging"
	"github.com/fluxfaas/fluxfaas/internal/metrics"
	"github.com/fluxfaas/fluxfaas/internal/sandbox"
)

// Config controls the idle sweeper.
type Config struct {
	CleanupInterval time.Duration
	MaxIdleDuration time.Duration
	DefaultQuota    domain.ResourceQuota
	ExecuteTimeout  time.Duration
}

// DefaultConfig provides conservative sweeper and execution defaults.
func DefaultConfig() Config {
	return Config{
		CleanupInterval: 60 * time.Second,
		MaxIdleDuration: 5 * time.Minute,
		DefaultQuota:    domain.DefaultQuota(),
		ExecuteTimeout:  30 * time.Second,
	}
}

// record is the manager's private per-instance bookkeeping: the public
// domain.Instance snapshot guarded by its own mutex. Resource monitoring
// is owned by the sandbox's ResourceBreachNotifier, not by the instance
// record, so Pool/Instance/Monitor never need to reference one another
// directly.
type record struct {
	mu       sync.Mutex
	instance domain.Instance
}

// Manager owns every Instance by ID. Pools refer to instances by ID
// only; monitors key on PID, not on instance references — this breaks
// the Pool/Instance/Monitor ownership triangle without weak handles.
type Manager struct {
	cfg      Config
	compiler *compiler.Compiler
	sandbox  *sandbox.Sandbox

	instances sync.Map // string id -> *record

	eventsMu sync.Mutex
	events   []domain.LifecycleEvent

	stopSweep chan struct{}
}

// New creates a Manager and starts its idle sweeper. s is expected to
// already be wired to a resource monitor notifier by the caller.
func New(cfg Config, c *compiler.Compiler, s *sandbox.Sandbox) *Manager {
	if cfg.CleanupInterval == 0 {
		cfg = DefaultConfig()
	}
	mgr := &Manager{
		cfg:       cfg,
		compiler:  c,
		sandbox:   s,
		stopSweep: make(chan struct{}),
	}
	go mgr.sweepLoop()
	return mgr
}

// Close stops the idle sweeper. Does not stop live instances.
func (m *Manager) Close() {
	close(m.stopSweep)
}

// Create allocates a new Instance in Creating, then compiles its artifact
// via C1 before returning and transitions to Ready or Error(msg).
// Concurrent Create calls for the same source hash reuse C1's memoized
// artifact through the compiler's own coalescing.
func (m *Manager) Create(ctx context.Context, spec *domain.FunctionSpec) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", domain.Wrap(domain.ErrInternal, err)
	}
	now := time.Now()
	rec := &record{instance: domain.Instance{
		ID:           id.String(),
		FunctionName: spec.Name,
		Phase:        domain.PhaseCreating,
		CreatedAt:    now,
		LastActivity: now,
		QuotaName:    m.cfg.DefaultQuota.Name,
	}}
	m.instances.Store(rec.instance.ID, rec)
	m.record(rec.instance.ID, spec.Name, domain.EventCreated, domain.PhaseCreating, domain.PhaseCreating, nil)

	artifact, err := m.compiler.Compile(ctx, spec)
	if err != nil {
		m.transitionError(rec, spec.Name, err.Error())
		return rec.instance.ID, err
	}

	rec.mu.Lock()
	rec.instance.Phase = domain.PhaseReady
	rec.instance.Artifact = artifact
	rec.mu.Unlock()
	m.record(rec.instance.ID, spec.Name, domain.EventReady, domain.PhaseCreating, domain.PhaseReady, nil)
	metrics.Global().RecordInstanceCreated()

	return rec.instance.ID, nil
}

// Warm runs any lazy initialization for id. For FluxFaaS's sandboxed
// process model there is no separate warm-up phase to run work in
// beyond the compile that Create already performed, so Warm simply
// records the transition — kept as a distinct operation because the
// spec's state machine names it explicitly and pools fan this call out
// with errgroup when scaling up.
func (m *Manager) Warm(ctx context.Context, id string) error {
	rec, ok := m.get(id)
	if !ok {
		return domain.NewError(domain.ErrNotFound, "instance not found")
	}

	rec.mu.Lock()
	if rec.instance.Phase != domain.PhaseReady {
		rec.mu.Unlock()
		return domain.NewError(domain.ErrValidationFailed, "instance not in Ready phase")
	}
	rec.instance.Phase = domain.PhaseWarming
	fnName := rec.instance.FunctionName
	rec.mu.Unlock()
	m.record(id, fnName, domain.EventWarmupStarted, domain.PhaseReady, domain.PhaseWarming, nil)

	rec.mu.Lock()
	rec.instance.Phase = domain.PhaseReady
	rec.mu.Unlock()
	m.record(id, fnName, domain.EventWarmupCompleted, domain.PhaseWarming, domain.PhaseReady, nil)
	return nil
}

// Execute runs input against id's artifact. Phase is observed exactly
// once at entry; a transition to Error mid-execution does not
// retroactively invalidate this in-flight call.
func (m *Manager) Execute(ctx context.Context, id string, scriptKind domain.ScriptKind, input json.RawMessage) (*domain.ExecutionRecord, error) {
	rec, ok := m.get(id)
	if !ok {
		return nil, domain.NewError(domain.ErrNotFound, "instance not found")
	}

	rec.mu.Lock()
	if !rec.instance.Phase.CanExecute() {
		phase := rec.instance.Phase
		rec.mu.Unlock()
		return nil, domain.NewError(domain.ErrValidationFailed, fmt.Sprintf("instance not ready, phase=%s", phase))
	}
	beforePhase := rec.instance.Phase
	rec.instance.Phase = domain.PhaseRunning
	artifact := rec.instance.Artifact
	fnName := rec.instance.FunctionName
	rec.mu.Unlock()
	m.record(id, fnName, domain.EventExecutionStarted, beforePhase, domain.PhaseRunning, nil)

	result, err := m.sandbox.Execute(ctx, artifact, scriptKind, input, m.cfg.ExecuteTimeout)

	rec.mu.Lock()
	rec.instance.LastActivity = time.Now()
	rec.instance.Counters.Total++
	if err != nil || result.Status != domain.StatusSuccess {
		rec.instance.Counters.Failed++
		if result != nil && result.Status == domain.StatusTimeout {
			rec.instance.Counters.TimedOut++
		}
	} else {
		rec.instance.Counters.Successful++
		updateDuration(&rec.instance.Counters, result.Duration)
	}
	rec.instance.Phase = domain.PhaseReady
	rec.mu.Unlock()

	kind := domain.EventExecutionCompleted
	if err != nil || (result != nil && result.Status != domain.StatusSuccess) {
		kind = domain.EventExecutionFailed
	}
	m.record(id, fnName, kind, domain.PhaseRunning, domain.PhaseReady, nil)

	if err != nil {
		return nil, err
	}
	return result, nil
}

func updateDuration(c *domain.ExecCounters, d time.Duration) {
	if c.MinDur == 0 || d < c.MinDur {
		c.MinDur = d
	}
	if d > c.MaxDur {
		c.MaxDur = d
	}
	n := c.Successful
	if n <= 1 {
		c.AvgDur = d
		return
	}
	c.AvgDur = c.AvgDur + (d-c.AvgDur)/time.Duration(n)
}

// Stop marks the instance Stopped, removes it from the active map, and
// emits Terminated. It sends no signal and detaches no monitor: the
// manager tracks no live PID, and an in-flight sandbox Execute for the
// instance runs on until its child exits or times out.
func (m *Manager) Stop(id string) error {
	rec, ok := m.get(id)
	if !ok {
		return domain.NewError(domain.ErrNotFound, "instance not found")
	}

	rec.mu.Lock()
	beforePhase := rec.instance.Phase
	rec.instance.Phase = domain.PhaseStopped
	fnName := rec.instance.FunctionName
	rec.mu.Unlock()

	m.instances.Delete(id)
	m.record(id, fnName, domain.EventTerminated, beforePhase, domain.PhaseStopped, nil)
	metrics.Global().RecordInstanceStopped()
	return nil
}

// CleanupIdle stops every instance whose Idle duration has exceeded
// MaxIdleDuration. Called by the sweep loop and exposed for tests.
func (m *Manager) CleanupIdle() {
	now := time.Now()
	var toStop []string
	m.instances.Range(func(key, value interface{}) bool {
		rec := value.(*record)
		rec.mu.Lock()
		idle := rec.instance.Phase == domain.PhaseIdle && now.Sub(rec.instance.LastActivity) > m.cfg.MaxIdleDuration
		rec.mu.Unlock()
		if idle {
			toStop = append(toStop, key.(string))
		}
		return true
	})
	for _, id := range toStop {
		m.Stop(id)
	}
}

func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopSweep:
			return
		case <-ticker.C:
			m.CleanupIdle()
		}
	}
}

// List returns a snapshot of every live instance, optionally filtered to
// one function name.
func (m *Manager) List(functionName string) []domain.Instance {
	var out []domain.Instance
	m.instances.Range(func(_, value interface{}) bool {
		rec := value.(*record)
		rec.mu.Lock()
		snap := rec.instance
		rec.mu.Unlock()
		if functionName == "" || snap.FunctionName == functionName {
			out = append(out, snap)
		}
		return true
	})
	return out
}

// Events returns the most recent limit LifecycleEvents (all functions).
func (m *Manager) Events(limit int) []domain.LifecycleEvent {
	m.eventsMu.Lock()
	defer m.eventsMu.Unlock()
	if limit <= 0 || limit > len(m.events) {
		limit = len(m.events)
	}
	out := make([]domain.LifecycleEvent, limit)
	copy(out, m.events[len(m.events)-limit:])
	return out
}

func (m *Manager) get(id string) (*record, bool) {
	v, ok := m.instances.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*record), true
}

func (m *Manager) transitionError(rec *record, fnName, msg string) {
	rec.mu.Lock()
	before := rec.instance.Phase
	rec.instance.Phase = domain.PhaseError
	rec.instance.ErrorMsg = msg
	rec.mu.Unlock()
	logging.Op().Error("instance entered error phase", "instance", rec.instance.ID, "function", fnName, "error", msg)
	m.record(rec.instance.ID, fnName, domain.EventError, before, domain.PhaseError, nil)
	metrics.Global().RecordInstanceCrashed()
}

func (m *Manager) record(instanceID, fnName string, kind domain.LifecycleEventKind, before, after domain.Phase, duration *int64) {
	ev := domain.LifecycleEvent{
		EventID:      newEventID(),
		InstanceID:   instanceID,
		FunctionName: fnName,
		Kind:         kind,
		PhaseBefore:  before,
		PhaseAfter:   after,
		Timestamp:    time.Now(),
		DurationMs:   duration,
	}

	m.eventsMu.Lock()
	defer m.eventsMu.Unlock()
	m.events = append(m.events, ev)
	if len(m.events) > domain.MaxLifecycleEvents {
		m.events = m.events[len(m.events)-domain.MaxLifecycleEvents:]
	}
}

func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Sprintf("evt-%d", time.Now().UnixNano())
	}
	return id.String()
}
