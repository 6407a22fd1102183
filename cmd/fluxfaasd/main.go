// Command fluxfaasd is the FluxFaaS control-plane daemon: it wires the
// compiler, sandbox, resource monitor, instance manager, pool manager
// and auto-scaler into one process and serves the Scheduler API over
// gRPC until it receives a shutdown signal.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fluxfaas/fluxfaas/internal/autoscaler"
	"github.com/fluxfaas/fluxfaas/internal/compiler"
	"github.com/fluxfaas/fluxfaas/internal/config"
	"github.com/fluxfaas/fluxfaas/internal/grpcapi"
	"github.com/fluxfaas/fluxfaas/internal/instance"
	"github.com/fluxfaas/fluxfaas/internal/logging"
	"github.com/fluxfaas/fluxfaas/internal/metrics"
	"github.com/fluxfaas/fluxfaas/internal/monitor"
	"github.com/fluxfaas/fluxfaas/internal/observability"
	"github.com/fluxfaas/fluxfaas/internal/pool"
	"github.com/fluxfaas/fluxfaas/internal/registry"
	"github.com/fluxfaas/fluxfaas/internal/sandbox"
	"github.com/fluxfaas/fluxfaas/internal/scheduler"
)

func main() {
	var (
		configFile string
		grpcAddr   string
		logLevel   string
	)
	flag.StringVar(&configFile, "config", "", "path to a JSON or YAML config file")
	flag.StringVar(&grpcAddr, "grpc", "", "override the control-plane gRPC listen address")
	flag.StringVar(&logLevel, "log-level", "", "override the configured log level")
	flag.Parse()

	if err := run(configFile, grpcAddr, logLevel); err != nil {
		fmt.Fprintln(os.Stderr, "fluxfaasd:", err)
		os.Exit(1)
	}
}

func run(configFile, grpcAddr, logLevel string) error {
	cfg := config.DefaultConfig()
	if configFile != "" {
		var err error
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}
	config.LoadFromEnv(cfg)
	if grpcAddr != "" {
		cfg.Daemon.GRPCAddr = grpcAddr
	}
	if logLevel != "" {
		cfg.Daemon.LogLevel = logLevel
	}

	logging.SetLevelFromString(cfg.Daemon.LogLevel)
	logging.InitStructured(cfg.Observability.Logging.Format, cfg.Observability.Logging.Level)

	if err := observability.Init(context.Background(), observability.Config{
		Enabled:     cfg.Observability.Tracing.Enabled,
		Exporter:    cfg.Observability.Tracing.Exporter,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		ServiceName: cfg.Observability.Tracing.ServiceName,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
	}); err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.Shutdown(context.Background())

	if cfg.Observability.Metrics.Enabled {
		metrics.InitPrometheus(cfg.Observability.Metrics.Namespace, cfg.Observability.Metrics.HistogramBuckets)
	}

	if cfg.Observability.OutputCapture.Enabled {
		if err := logging.InitOutputStore(
			cfg.Observability.OutputCapture.StorageDir,
			cfg.Observability.OutputCapture.MaxSize,
			cfg.Observability.OutputCapture.RetentionS,
		); err != nil {
			logging.Op().Warn("failed to init output capture", "error", err)
		}
	}

	secondary := compiler.DefaultConfig()
	secondary.ScratchDir = cfg.Compiler.ScratchDir
	secondary.CargoTargetDir = cfg.Compiler.CargoTargetDir
	secondary.CompileTimeout = cfg.Compiler.CompileTimeout
	secondary.MaxCacheEntries = cfg.Compiler.MaxCacheEntries
	secondary.RedisAddr = cfg.Compiler.RedisAddr

	comp := compiler.New(secondary, nil)
	if cfg.Compiler.RedisAddr != "" {
		comp = compiler.New(secondary, compiler.NewRedisSecondaryCache(cfg.Compiler.RedisAddr, "fluxfaas:compile-cache"))
		logging.Op().Info("compiler redis secondary cache enabled", "addr", cfg.Compiler.RedisAddr)
	}

	mon := monitor.New(monitor.ProcReader{})
	notifier := monitor.NewNotifier(mon, cfg.Instance.DefaultQuota)

	sb := sandbox.New(sandbox.Config{
		AllowedEnvVars:   cfg.Sandbox.AllowedEnvVars,
		ExecutorHostPath: cfg.Sandbox.ExecutorHostPath,
		GracePeriod:      cfg.Sandbox.GracePeriod,
		MaxOutputBytes:   cfg.Sandbox.MaxOutputBytes,
	}, notifier)

	im := instance.New(instance.Config{
		CleanupInterval: cfg.Instance.CleanupInterval,
		MaxIdleDuration: cfg.Instance.MaxIdleDuration,
		DefaultQuota:    cfg.Instance.DefaultQuota,
		ExecuteTimeout:  cfg.Instance.ExecuteTimeout,
	}, comp, sb)

	pools := pool.New(im)

	as := autoscaler.New(pools, cfg.Pool.AutoscaleInterval)
	as.Start(context.Background())
	defer as.Stop()

	reg := registry.New()
	sched := scheduler.New(reg, pools)

	srv := grpcapi.NewServer(sched)
	if err := srv.Start(cfg.Daemon.GRPCAddr); err != nil {
		return fmt.Errorf("start gRPC server: %w", err)
	}

	logging.Op().Info("fluxfaasd started", "grpc_addr", cfg.Daemon.GRPCAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logging.Op().Info("shutdown signal received")
	srv.Stop()
	as.Stop()
	im.Close()

	return nil
}
