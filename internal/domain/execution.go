package domain

import (
	"encoding/json"
	"time"
)

// ExecutionStatus is the terminal, user-visible status of one invocation.
type ExecutionStatus string

const (
	StatusSuccess ExecutionStatus = "success"
	StatusFailed  ExecutionStatus = "failed"
	StatusTimeout ExecutionStatus = "timeout"
)

// ExecutionRecord is the result of running one request through the
// pipeline: C2's sandbox output plus timing/memory observed by C3.
type ExecutionRecord struct {
	ExitCode    int             `json:"exit_code"`
	Stdout      string          `json:"stdout"`
	Stderr      string          `json:"stderr"`
	Output      json.RawMessage `json:"output"`
	Duration    time.Duration   `json:"duration"`
	PeakMemMB   float64         `json:"peak_memory_mb"`
	Status      ExecutionStatus `json:"status"`
	ResourceErr ResourceKind    `json:"resource_kind,omitempty"`
}
