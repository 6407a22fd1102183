package domain

import "time"

// PoolConfig holds one function's pool sizing and scaling policy.
// internal/pool applies it as given and does not validate it: it does not
// check that ScaleUpThreshold > ScaleDownThreshold, and Min and Max bound
// only ScaleDown and ScaleUp, not the Target warmed by CreatePool.
type PoolConfig struct {
	Min                 int             `json:"min_instances"`
	Max                 int             `json:"max_instances"`
	Target              int             `json:"target_instances"`
	ScaleUpThreshold    float64         `json:"scale_up_threshold"`
	ScaleDownThreshold  float64         `json:"scale_down_threshold"`
	ScaleUpCooldown     time.Duration   `json:"scale_up_cooldown"`
	ScaleDownCooldown   time.Duration   `json:"scale_down_cooldown"`
	HealthCheckInterval time.Duration   `json:"health_check_interval"`
	BalanceStrategy     BalanceStrategy `json:"load_balance_strategy"`

	// NominalConcurrency is the per-instance concurrency budget used to
	// compute load = active_connections / NominalConcurrency.
	NominalConcurrency int `json:"nominal_concurrency"`
}

// DefaultPoolConfig returns sane single-function defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Min:                 1,
		Max:                 5,
		Target:              1,
		ScaleUpThreshold:    0.7,
		ScaleDownThreshold:  0.2,
		ScaleUpCooldown:     30 * time.Second,
		ScaleDownCooldown:   60 * time.Second,
		HealthCheckInterval: 30 * time.Second,
		BalanceStrategy:     StrategyRoundRobin,
		NominalConcurrency:  1,
	}
}
