package domain

import "time"

// Phase is an Instance's position in the lifecycle state machine:
//
//	Creating -> Ready -> Warming -> Ready -> Running -> Ready/Idle -> Stopped
//	   |                    |                              |
//	   v                    v                              v
//	 Error               Error                          (pool replaces)
type Phase string

const (
	PhaseCreating Phase = "creating"
	PhaseReady    Phase = "ready"
	PhaseWarming  Phase = "warming"
	PhaseRunning  Phase = "running"
	PhaseIdle     Phase = "idle"
	PhaseStopped  Phase = "stopped"
	PhaseError    Phase = "error"
)

// CanExecute reports whether an instance in this phase may accept
// Execute().
func (p Phase) CanExecute() bool {
	return p == PhaseReady || p == PhaseIdle
}

// ExecCounters tracks per-instance invocation statistics.
type ExecCounters struct {
	Total      int64         `json:"total"`
	Successful int64         `json:"successful"`
	Failed     int64         `json:"failed"`
	TimedOut   int64         `json:"timed_out"`
	MinDur     time.Duration `json:"min_duration"`
	MaxDur     time.Duration `json:"max_duration"`
	AvgDur     time.Duration `json:"avg_duration"`
	PeakMemMB  float64       `json:"peak_memory_mb"`
}

// Instance is a runtime binding of one FunctionSpec to (eventually) one
// sandboxed child process. Instances are owned exclusively by the
// Instance Manager by ID; the Pool refers to them by ID only.
type Instance struct {
	ID           string    `json:"id"`
	FunctionName string    `json:"function_name"`
	Phase        Phase     `json:"phase"`
	ErrorMsg     string    `json:"error_msg,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`

	Counters ExecCounters `json:"counters"`

	Artifact  *Artifact `json:"artifact,omitempty"`
	PID       int       `json:"pid,omitempty"` // 0 when no live child
	QuotaName string    `json:"quota_name,omitempty"`
}
