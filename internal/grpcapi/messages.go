package grpcapi

import "encoding/json"

// Wire messages for the FluxFaaS control-plane gRPC service. These are
// plain JSON-codec structs (see codec.go) rather than protoc-generated
// types.

// PoolConfigMsg mirrors domain.PoolConfig for wire transport. Durations
// travel as milliseconds since JSON has no native duration type.
type PoolConfigMsg struct {
	Min                   int     `json:"min_instances"`
	Max                   int     `json:"max_instances"`
	Target                int     `json:"target_instances"`
	ScaleUpThreshold      float64 `json:"scale_up_threshold"`
	ScaleDownThreshold    float64 `json:"scale_down_threshold"`
	ScaleUpCooldownMs     int64   `json:"scale_up_cooldown_ms"`
	ScaleDownCooldownMs   int64   `json:"scale_down_cooldown_ms"`
	HealthCheckIntervalMs int64   `json:"health_check_interval_ms"`
	BalanceStrategy       string  `json:"load_balance_strategy"`
	NominalConcurrency    int     `json:"nominal_concurrency"`
}

// RegisterRequest asks the control plane to add or replace a function.
type RegisterRequest struct {
	Name       string         `json:"name"`
	Source     string         `json:"source"`
	ScriptKind string         `json:"script_kind"`
	TimeoutMs  int64          `json:"timeout_ms"`
	PoolConfig *PoolConfigMsg `json:"pool_config,omitempty"`
}

// RegisterResponse echoes the newly assigned function id.
type RegisterResponse struct {
	Id string `json:"id"`
}

// UnregisterRequest names the function to remove.
type UnregisterRequest struct {
	Name string `json:"name"`
}

// UnregisterResponse is empty; its presence keeps the RPC's request/response
// shape uniform with the rest of the service.
type UnregisterResponse struct{}

// InvokeRequest carries a single synchronous invocation.
type InvokeRequest struct {
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// InvokeResponse is the control-plane envelope for one invocation's result.
type InvokeResponse struct {
	RequestId  string          `json:"request_id"`
	Output     json.RawMessage `json:"output,omitempty"`
	Error      string          `json:"error,omitempty"`
	DurationMs int64           `json:"duration_ms"`
	ColdStart  bool            `json:"cold_start"`
}

// ListFunctionsRequest has no parameters; every registered function is
// returned in one response.
type ListFunctionsRequest struct{}

// FunctionInfo is one registered function's public metadata.
type FunctionInfo struct {
	Id         string `json:"id"`
	Name       string `json:"name"`
	ScriptKind string `json:"script_kind"`
	TimeoutMs  int64  `json:"timeout_ms"`
}

// ListFunctionsResponse lists every registered function.
type ListFunctionsResponse struct {
	Functions []FunctionInfo `json:"functions"`
}

// HealthCheckRequest has no parameters.
type HealthCheckRequest struct{}

// HealthCheckResponse reports overall service health.
type HealthCheckResponse struct {
	Status string `json:"status"`
}
