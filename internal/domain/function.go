// Package domain holds the core types of the FluxFaaS execution substrate:
// FunctionSpec, Artifact, Instance, ResourceQuota, ExecutionRecord,
// LifecycleEvent and LoadBalanceTarget. These are plain data types shared
// across the other internal packages; none of them hold behavior that is
// specific to a single backend.
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ScriptKind identifies the source language of a registered function.
type ScriptKind string

const (
	ScriptRust       ScriptKind = "rust"
	ScriptJavaScript ScriptKind = "javascript"
	ScriptPython     ScriptKind = "python"
	ScriptTypeScript ScriptKind = "typescript"
)

func (k ScriptKind) IsValid() bool {
	switch k {
	case ScriptRust, ScriptJavaScript, ScriptPython, ScriptTypeScript:
		return true
	}
	return false
}

// NeedsCompilation reports whether a script kind must pass through the
// compiler (C1) before it can be executed. Interpreted kinds bypass C1
// and are handled directly by the sandbox executor (C2).
func NeedsCompilation(k ScriptKind) bool {
	return k == ScriptRust
}

// DetectScriptKind guesses a script kind from source heuristics when the
// caller did not declare one. Best effort; callers should prefer an
// explicit declaration.
func DetectScriptKind(source string) ScriptKind {
	switch {
	case containsAny(source, "fn main(", "fn flux_execute", "-> impl", "let mut "):
		return ScriptRust
	case containsAny(source, "def ", "import ", "print("):
		return ScriptPython
	case containsAny(source, "interface ", ": string", ": number"):
		return ScriptTypeScript
	default:
		return ScriptJavaScript
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if len(sub) == 0 || len(sub) > len(s) {
			continue
		}
		for i := 0; i+len(sub) <= len(s); i++ {
			if s[i:i+len(sub)] == sub {
				return true
			}
		}
	}
	return false
}

// ParamSpec optionally documents a declared function parameter.
type ParamSpec struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// FunctionSpec is the immutable description of a registered function. A
// FunctionSpec is never mutated after creation; a new version of a
// function produces a new FunctionSpec with a fresh ID.
type FunctionSpec struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Source       string      `json:"source"`
	ScriptKind   ScriptKind  `json:"script_kind"`
	TimeoutMs    int64       `json:"timeout_ms"`
	Params       []ParamSpec `json:"params,omitempty"`
	ReturnKind   string      `json:"return_kind,omitempty"`
	Version      string      `json:"version"`
	Dependencies []string    `json:"dependencies,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

// NewFunctionSpec constructs a FunctionSpec with a fresh time-ordered ID
// (UUIDv7: 128 bits, lexically and temporally ordered). If scriptKind is
// empty it is auto-detected from the source text.
func NewFunctionSpec(name, source string, scriptKind ScriptKind, timeout time.Duration) (*FunctionSpec, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	if scriptKind == "" {
		scriptKind = DetectScriptKind(source)
	}
	return &FunctionSpec{
		ID:         id.String(),
		Name:       name,
		Source:     source,
		ScriptKind: scriptKind,
		TimeoutMs:  timeout.Milliseconds(),
		Version:    "1",
		CreatedAt:  time.Now(),
	}, nil
}

func (f *FunctionSpec) MarshalBinary() ([]byte, error) {
	return json.Marshal(f)
}

func (f *FunctionSpec) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, f)
}

// InvokeResponse is the JSON envelope returned by the Scheduler API for a
// single invocation.
type InvokeResponse struct {
	RequestID  string          `json:"request_id"`
	Output     json.RawMessage `json:"output"`
	Error      string          `json:"error,omitempty"`
	DurationMs int64           `json:"duration_ms"`
	ColdStart  bool            `json:"cold_start"`
}
