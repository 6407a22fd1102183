// Package config is FluxFaaS's central configuration surface: one
// sub-struct per core component (compiler, sandbox, instance, pool,
// load balancer) plus daemon/observability settings, loaded from a JSON
// or YAML file and overridable by FLUXFAAS_* environment variables.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fluxfaas/fluxfaas/internal/domain"
)

// CompilerConfig mirrors compiler.Config (C1).
type CompilerConfig struct {
	ScratchDir      string        `json:"scratch_dir" yaml:"scratch_dir"`
	CargoTargetDir  string        `json:"cargo_target_dir" yaml:"cargo_target_dir"`
	CompileTimeout  time.Duration `json:"compile_timeout" yaml:"compile_timeout"`
	MaxCacheEntries int           `json:"max_cache_entries" yaml:"max_cache_entries"`
	RedisAddr       string        `json:"redis_addr" yaml:"redis_addr"`
}

// SandboxConfig mirrors sandbox.Config (C2).
type SandboxConfig struct {
	AllowedEnvVars   []string      `json:"allowed_env_vars" yaml:"allowed_env_vars"`
	ExecutorHostPath string        `json:"executor_host_path" yaml:"executor_host_path"`
	GracePeriod      time.Duration `json:"grace_period" yaml:"grace_period"`
	MaxOutputBytes   int           `json:"max_output_bytes" yaml:"max_output_bytes"`
}

// InstanceConfig mirrors instance.Config (C4).
type InstanceConfig struct {
	CleanupInterval time.Duration       `json:"cleanup_interval" yaml:"cleanup_interval"`
	MaxIdleDuration time.Duration       `json:"max_idle_duration" yaml:"max_idle_duration"`
	DefaultQuota    domain.ResourceQuota `json:"default_quota" yaml:"default_quota"`
	ExecuteTimeout  time.Duration       `json:"execute_timeout" yaml:"execute_timeout"`
}

// PoolConfig holds per-function pool-policy fields (C5) plus the
// auto-scaler's evaluation interval. fluxfaasd passes only
// AutoscaleInterval on: a function registered without its own
// domain.PoolConfig gets domain.DefaultPoolConfig(), not these fields.
type PoolConfig struct {
	domain.PoolConfig `yaml:",inline"`
	AutoscaleInterval time.Duration `json:"autoscale_interval" yaml:"autoscale_interval"`
}

// LoadBalancerConfig holds balancer strategy and consecutive-failure
// circuit breaker settings (C6). They are not passed to the pools: each
// pool's balancer uses its PoolConfig's BalanceStrategy and
// lb.DefaultBreakerConfig().
type LoadBalancerConfig struct {
	Strategy         domain.BalanceStrategy `json:"strategy" yaml:"strategy"`
	FailureThreshold int                    `json:"failure_threshold" yaml:"failure_threshold"`
	SuccessThreshold int                    `json:"success_threshold" yaml:"success_threshold"`
	RecoveryTime     time.Duration          `json:"recovery_time" yaml:"recovery_time"`
}

// DaemonConfig holds process-level settings for cmd/fluxfaasd.
type DaemonConfig struct {
	GRPCAddr string `json:"grpc_addr" yaml:"grpc_addr"`
	LogLevel string `json:"log_level" yaml:"log_level"`
}

// TracingConfig holds OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Exporter    string  `json:"exporter" yaml:"exporter"` // otlp-http (or otlp), stdout (spans discarded)
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`
	ServiceName string  `json:"service_name" yaml:"service_name"`
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled          bool      `json:"enabled" yaml:"enabled"`
	Namespace        string    `json:"namespace" yaml:"namespace"`
	HistogramBuckets []float64 `json:"histogram_buckets" yaml:"histogram_buckets"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level          string `json:"level" yaml:"level"` // debug, info, warn, error
	Format         string `json:"format" yaml:"format"` // text, json
	IncludeTraceID bool   `json:"include_trace_id" yaml:"include_trace_id"`
}

// OutputCaptureConfig controls per-invocation stdout/stderr retention.
type OutputCaptureConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`
	MaxSize    int64  `json:"max_size" yaml:"max_size"`
	RetentionS int    `json:"retention_s" yaml:"retention_s"`
}

// ObservabilityConfig groups tracing, metrics, logging and output
// capture settings.
type ObservabilityConfig struct {
	Tracing       TracingConfig       `json:"tracing" yaml:"tracing"`
	Metrics       MetricsConfig       `json:"metrics" yaml:"metrics"`
	Logging       LoggingConfig       `json:"logging" yaml:"logging"`
	OutputCapture OutputCaptureConfig `json:"output_capture" yaml:"output_capture"`
}

// Config is the central configuration struct embedding every component's
// settings.
type Config struct {
	Compiler      CompilerConfig      `json:"compiler" yaml:"compiler"`
	Sandbox       SandboxConfig       `json:"sandbox" yaml:"sandbox"`
	Instance      InstanceConfig      `json:"instance" yaml:"instance"`
	Pool          PoolConfig          `json:"pool" yaml:"pool"`
	LoadBalancer  LoadBalancerConfig  `json:"load_balancer" yaml:"load_balancer"`
	Daemon        DaemonConfig        `json:"daemon" yaml:"daemon"`
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
}

// DefaultConfig returns a Config with sensible defaults, mirroring each
// component package's own DefaultConfig/DefaultPoolConfig.
func DefaultConfig() *Config {
	return &Config{
		Compiler: CompilerConfig{
			ScratchDir:      filepath.Join(os.TempDir(), "fluxfaas-compiler"),
			CompileTimeout:  30 * time.Second,
			MaxCacheEntries: 256,
		},
		Sandbox: SandboxConfig{
			GracePeriod:    500 * time.Millisecond,
			MaxOutputBytes: 4 << 20,
		},
		Instance: InstanceConfig{
			CleanupInterval: 60 * time.Second,
			MaxIdleDuration: 5 * time.Minute,
			DefaultQuota:    domain.DefaultQuota(),
			ExecuteTimeout:  30 * time.Second,
		},
		Pool: PoolConfig{
			PoolConfig:        domain.DefaultPoolConfig(),
			AutoscaleInterval: 30 * time.Second,
		},
		LoadBalancer: LoadBalancerConfig{
			Strategy:         domain.StrategyRoundRobin,
			FailureThreshold: 5,
			SuccessThreshold: 2,
			RecoveryTime:     30 * time.Second,
		},
		Daemon: DaemonConfig{
			GRPCAddr: ":9090",
			LogLevel: "info",
		},
		Observability: ObservabilityConfig{
			Tracing: TracingConfig{
				Enabled:     false,
				Exporter:    "otlp-http",
				Endpoint:    "localhost:4318",
				ServiceName: "fluxfaasd",
				SampleRate:  1.0,
			},
			Metrics: MetricsConfig{
				Enabled:          true,
				Namespace:        "fluxfaas",
				HistogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
			},
			Logging: LoggingConfig{
				Level:          "info",
				Format:         "text",
				IncludeTraceID: true,
			},
			OutputCapture: OutputCaptureConfig{
				Enabled:    false,
				StorageDir: filepath.Join(os.TempDir(), "fluxfaas-output"),
				MaxSize:    1 << 20,
				RetentionS: 3600,
			},
		},
	}
}

// LoadFromFile loads configuration from a JSON or YAML file, selected by
// extension (.yaml/.yml for YAML, anything else for JSON).
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// LoadFromEnv applies FLUXFAAS_* environment variable overrides to cfg.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("FLUXFAAS_GRPC_ADDR"); v != "" {
		cfg.Daemon.GRPCAddr = v
	}
	if v := os.Getenv("FLUXFAAS_LOG_LEVEL"); v != "" {
		cfg.Daemon.LogLevel = v
	}

	// Compiler overrides
	if v := os.Getenv("FLUXFAAS_COMPILER_SCRATCH_DIR"); v != "" {
		cfg.Compiler.ScratchDir = v
	}
	if v := os.Getenv("FLUXFAAS_COMPILER_CARGO_TARGET_DIR"); v != "" {
		cfg.Compiler.CargoTargetDir = v
	}
	if v := os.Getenv("FLUXFAAS_COMPILER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Compiler.CompileTimeout = d
		}
	}
	if v := os.Getenv("FLUXFAAS_COMPILER_MAX_CACHE_ENTRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Compiler.MaxCacheEntries = n
		}
	}
	if v := os.Getenv("FLUXFAAS_COMPILER_REDIS_ADDR"); v != "" {
		cfg.Compiler.RedisAddr = v
	}

	// Sandbox overrides
	if v := os.Getenv("FLUXFAAS_SANDBOX_EXECUTOR_HOST_PATH"); v != "" {
		cfg.Sandbox.ExecutorHostPath = v
	}
	if v := os.Getenv("FLUXFAAS_SANDBOX_GRACE_PERIOD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sandbox.GracePeriod = d
		}
	}
	if v := os.Getenv("FLUXFAAS_SANDBOX_MAX_OUTPUT_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sandbox.MaxOutputBytes = n
		}
	}
	if v := os.Getenv("FLUXFAAS_SANDBOX_ALLOWED_ENV_VARS"); v != "" {
		cfg.Sandbox.AllowedEnvVars = strings.Split(v, ",")
	}

	// Instance overrides
	if v := os.Getenv("FLUXFAAS_INSTANCE_CLEANUP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Instance.CleanupInterval = d
		}
	}
	if v := os.Getenv("FLUXFAAS_INSTANCE_MAX_IDLE_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Instance.MaxIdleDuration = d
		}
	}
	if v := os.Getenv("FLUXFAAS_INSTANCE_EXECUTE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Instance.ExecuteTimeout = d
		}
	}

	// Pool overrides
	if v := os.Getenv("FLUXFAAS_POOL_MIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pool.Min = n
		}
	}
	if v := os.Getenv("FLUXFAAS_POOL_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pool.Max = n
		}
	}
	if v := os.Getenv("FLUXFAAS_POOL_TARGET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pool.Target = n
		}
	}
	if v := os.Getenv("FLUXFAAS_POOL_SCALE_UP_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Pool.ScaleUpThreshold = f
		}
	}
	if v := os.Getenv("FLUXFAAS_POOL_SCALE_DOWN_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Pool.ScaleDownThreshold = f
		}
	}
	if v := os.Getenv("FLUXFAAS_POOL_AUTOSCALE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Pool.AutoscaleInterval = d
		}
	}

	// Load balancer overrides
	if v := os.Getenv("FLUXFAAS_LB_STRATEGY"); v != "" {
		cfg.LoadBalancer.Strategy = domain.BalanceStrategy(v)
	}
	if v := os.Getenv("FLUXFAAS_LB_FAILURE_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LoadBalancer.FailureThreshold = n
		}
	}
	if v := os.Getenv("FLUXFAAS_LB_SUCCESS_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LoadBalancer.SuccessThreshold = n
		}
	}
	if v := os.Getenv("FLUXFAAS_LB_RECOVERY_TIME"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.LoadBalancer.RecoveryTime = d
		}
	}

	// Observability overrides
	if v := os.Getenv("FLUXFAAS_TRACING_ENABLED"); v != "" {
		cfg.Observability.Tracing.Enabled = parseBool(v)
	}
	if v := os.Getenv("FLUXFAAS_TRACING_ENDPOINT"); v != "" {
		cfg.Observability.Tracing.Endpoint = v
	}
	if v := os.Getenv("FLUXFAAS_TRACING_EXPORTER"); v != "" {
		cfg.Observability.Tracing.Exporter = v
	}
	if v := os.Getenv("FLUXFAAS_TRACING_SERVICE_NAME"); v != "" {
		cfg.Observability.Tracing.ServiceName = v
	}
	if v := os.Getenv("FLUXFAAS_TRACING_SAMPLE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Observability.Tracing.SampleRate = f
		}
	}
	if v := os.Getenv("FLUXFAAS_METRICS_ENABLED"); v != "" {
		cfg.Observability.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("FLUXFAAS_METRICS_NAMESPACE"); v != "" {
		cfg.Observability.Metrics.Namespace = v
	}
	if v := os.Getenv("FLUXFAAS_LOG_FORMAT"); v != "" {
		cfg.Observability.Logging.Format = v
	}
	if v := os.Getenv("FLUXFAAS_LOG_INCLUDE_TRACE_ID"); v != "" {
		cfg.Observability.Logging.IncludeTraceID = parseBool(v)
	}
	if v := os.Getenv("FLUXFAAS_OUTPUT_CAPTURE_ENABLED"); v != "" {
		cfg.Observability.OutputCapture.Enabled = parseBool(v)
	}
	if v := os.Getenv("FLUXFAAS_OUTPUT_CAPTURE_STORAGE_DIR"); v != "" {
		cfg.Observability.OutputCapture.StorageDir = v
	}
	if v := os.Getenv("FLUXFAAS_OUTPUT_CAPTURE_MAX_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Observability.OutputCapture.MaxSize = n
		}
	}
	if v := os.Getenv("FLUXFAAS_OUTPUT_CAPTURE_RETENTION_S"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Observability.OutputCapture.RetentionS = n
		}
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes"
}
