// Package sandbox implements the FluxFaaS process executor (C2): running
// one compiled or interpreted domain.Artifact against a single JSON
// input in an isolated child process.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/fluxfaas/fluxfaas/internal/domain"
	"github.com/fluxfaas/fluxfaas/internal/logging"
)

// Config controls the sandbox's process-spawning policy.
type Config struct {
	// AllowedEnvVars is re-injected from the parent's environment into an
	// otherwise-cleared child environment.
	AllowedEnvVars []string
	// ExecutorHostPath is the cached dlopen-host binary used to run
	// compiled Rust artifacts. Built once at daemon startup.
	ExecutorHostPath string
	// GracePeriod is how long the sandbox waits after SIGTERM before
	// escalating to SIGKILL.
	GracePeriod time.Duration
	// MaxOutputBytes caps captured stdout/stderr to bound memory use.
	MaxOutputBytes int
}

// DefaultConfig uses a conservative stop grace window and a generous
// default output cap.
func DefaultConfig() Config {
	return Config{
		GracePeriod:    500 * time.Millisecond,
		MaxOutputBytes: 4 << 20,
	}
}

// ResourceBreachNotifier is implemented by the resource monitor (C3) so
// the sandbox can register a freshly spawned PID for supervision. The
// stop func ends supervision and reports whether a hard breach occurred,
// which resource kind tripped it, and the peak memory observed, so the
// sandbox can stamp these onto the ExecutionRecord it builds.
type ResourceBreachNotifier interface {
	Watch(pid int, onHardBreach func()) (stop func() (breached bool, kind domain.ResourceKind, peakMemMB float64), err error)
}

// Sandbox runs one artifact invocation per Execute call.
type Sandbox struct {
	cfg     Config
	monitor ResourceBreachNotifier // nil disables C3 integration, e.g. in tests
}

// New creates a Sandbox. monitor may be nil.
func New(cfg Config, monitor ResourceBreachNotifier) *Sandbox {
	if cfg.GracePeriod == 0 {
		cfg = DefaultConfig()
	}
	return &Sandbox{cfg: cfg, monitor: monitor}
}

// Execute runs artifact against input under ctx's deadline and returns a
// structured record of the child's outcome. The child's process group is
// registered with the resource monitor the instant Start succeeds.
func (s *Sandbox) Execute(ctx context.Context, artifact *domain.Artifact, scriptKind domain.ScriptKind, input json.RawMessage, timeout time.Duration) (*domain.ExecutionRecord, error) {
	cmd, cleanup, err := s.buildCommand(ctx, artifact, scriptKind, input)
	if err != nil {
		return nil, domain.Wrap(domain.ErrInternal, err)
	}
	defer cleanup()

	var stdout, stderr limitedBuffer
	stdout.limit = s.cfg.MaxOutputBytes
	stderr.limit = s.cfg.MaxOutputBytes
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Stdin = nil
	cmd.SysProcAttr = &unix.SysProcAttr{Setpgid: true}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, domain.NewError(domain.ErrChildCrashed, "spawn failed").WithCause(err)
	}

	var killOnce atomic.Bool
	var timedOut atomic.Bool

	// cmd.Wait reaps the child exactly once, on this goroutine; terminate
	// must never call Process.Wait itself, or two waitpid(2) calls would
	// race over which one reaps the child and gets the real exit status.
	waitDone := make(chan struct{})
	var waitErr error
	go func() {
		waitErr = cmd.Wait()
		close(waitDone)
	}()

	kill := func() { s.terminate(cmd, &killOnce, waitDone) }

	var stopWatch func() (bool, domain.ResourceKind, float64)
	if s.monitor != nil {
		stopWatch, _ = s.monitor.Watch(cmd.Process.Pid, kill)
	}

	deadline := time.AfterFunc(timeout, func() {
		timedOut.Store(true)
		kill()
	})
	<-waitDone
	deadline.Stop()

	var breached bool
	var breachKind domain.ResourceKind
	var peakMemMB float64
	if stopWatch != nil {
		breached, breachKind, peakMemMB = stopWatch()
	}
	duration := time.Since(start)

	rec := s.buildRecord(waitErr, duration, stdout.String(), stderr.String(), breached, breachKind, peakMemMB)
	if timedOut.Load() && rec.Status != domain.StatusSuccess {
		rec.Status = domain.StatusTimeout
	}
	return rec, nil
}

// terminate sends SIGTERM to the process group, waits GracePeriod for
// waitDone to close (signaling Execute's own cmd.Wait reaped the child),
// then escalates to SIGKILL. Idempotent: only the first caller signals.
// It never calls Process.Wait itself — exactly one goroutine (Execute's)
// may reap the child, or the two waitpid(2) calls race over which one
// gets the real exit status.
func (s *Sandbox) terminate(cmd *exec.Cmd, once *atomic.Bool, waitDone <-chan struct{}) {
	if !once.CompareAndSwap(false, true) {
		return
	}
	pgid := -cmd.Process.Pid
	unix.Kill(pgid, unix.SIGTERM)

	select {
	case <-waitDone:
	case <-time.After(s.cfg.GracePeriod):
		unix.Kill(pgid, unix.SIGKILL)
	}
}

func (s *Sandbox) buildCommand(ctx context.Context, artifact *domain.Artifact, kind domain.ScriptKind, input json.RawMessage) (*exec.Cmd, func(), error) {
	switch {
	case artifact.Interpreted && kind == domain.ScriptJavaScript:
		return s.buildInterpretedCommand(ctx, "node", artifact, input)
	case artifact.Interpreted && kind == domain.ScriptTypeScript:
		return s.buildInterpretedCommand(ctx, "node", artifact, input)
	case artifact.Interpreted && kind == domain.ScriptPython:
		return s.buildInterpretedCommand(ctx, "python3", artifact, input)
	case !artifact.Interpreted:
		return s.buildCompiledCommand(ctx, artifact, input)
	default:
		return nil, nil, fmt.Errorf("unsupported script kind %q", kind)
	}
}

// buildCompiledCommand spawns the cached executor host, which dlopens the
// cdylib and calls flux_execute/flux_free_string inside the child — never
// in the fluxfaasd process itself.
func (s *Sandbox) buildCompiledCommand(ctx context.Context, artifact *domain.Artifact, input json.RawMessage) (*exec.Cmd, func(), error) {
	if s.cfg.ExecutorHostPath == "" {
		return nil, nil, fmt.Errorf("no executor host binary configured")
	}
	cmd := exec.CommandContext(ctx, s.cfg.ExecutorHostPath, artifact.Path, string(input))
	cmd.Env = s.buildEnv()
	return cmd, func() {}, nil
}

// buildInterpretedCommand stages a small harness file that reads the
// input from argv and writes the handler's result to stdout, then runs
// it under the named interpreter.
func (s *Sandbox) buildInterpretedCommand(ctx context.Context, interpreter string, artifact *domain.Artifact, input json.RawMessage) (*exec.Cmd, func(), error) {
	harness, err := writeHarness(interpreter, artifact.Source)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { os.Remove(harness) }

	cmd := exec.CommandContext(ctx, interpreter, harness, string(input))
	cmd.Env = s.buildEnv()
	return cmd, cleanup, nil
}

func (s *Sandbox) buildEnv() []string {
	env := make([]string, 0, len(s.cfg.AllowedEnvVars))
	for _, name := range s.cfg.AllowedEnvVars {
		if v, ok := os.LookupEnv(name); ok {
			env = append(env, name+"="+v)
		}
	}
	return env
}

// buildRecord classifies the wait error into a terminal ExecutionRecord
// and parses stdout as the handler's JSON output. A resource hard breach
// takes precedence over the raw exit status: the child was killed by
// terminate in response to the breach, so its exit code reflects the
// signal rather than its own logic.
func (s *Sandbox) buildRecord(waitErr error, duration time.Duration, stdout, stderr string, breached bool, breachKind domain.ResourceKind, peakMemMB float64) *domain.ExecutionRecord {
	rec := &domain.ExecutionRecord{
		Stdout:    stdout,
		Stderr:    stderr,
		Duration:  duration,
		PeakMemMB: peakMemMB,
	}

	exitErr, isExit := waitErr.(*exec.ExitError)
	switch {
	case waitErr == nil:
		rec.ExitCode = 0
		rec.Status = domain.StatusSuccess
	case isExit:
		rec.ExitCode = exitErr.ExitCode()
		rec.Status = domain.StatusFailed
	default:
		rec.Status = domain.StatusFailed
	}

	if breached {
		rec.Status = domain.StatusFailed
		rec.ResourceErr = breachKind
	}

	if rec.Status == domain.StatusSuccess {
		rec.Output = parseOutput(stdout)
	}
	return rec
}

// parseOutput reads the last non-empty line of stdout as JSON. A line
// that fails to parse is wrapped as {"result": "<raw>"}.
func parseOutput(stdout string) json.RawMessage {
	lines := strings.Split(strings.TrimRight(stdout, "\n"), "\n")
	last := ""
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			last = lines[i]
			break
		}
	}
	if last == "" {
		return json.RawMessage("null")
	}
	if json.Valid([]byte(last)) {
		return json.RawMessage(last)
	}
	wrapped, err := json.Marshal(map[string]string{"result": last})
	if err != nil {
		logging.Op().Warn("failed to wrap non-JSON sandbox output", "error", err)
		return json.RawMessage("null")
	}
	return wrapped
}

// limitedBuffer is a bytes.Buffer that silently stops accepting writes
// past limit, to bound captured stdout/stderr memory.
type limitedBuffer struct {
	bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if b.limit > 0 && b.Len() >= b.limit {
		return len(p), nil
	}
	if b.limit > 0 && b.Len()+len(p) > b.limit {
		p = p[:b.limit-b.Len()]
	}
	return b.Buffer.Write(p)
}
