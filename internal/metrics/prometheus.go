package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics wraps prometheus collectors for FluxFaaS metrics
type PrometheusMetrics struct {
	registry *prometheus.Registry

	// Counters
	invocationsTotal      *prometheus.CounterVec
	coldStartsTotal       prometheus.Counter
	warmStartsTotal       prometheus.Counter
	instancesCreated      prometheus.Counter
	instancesStopped      prometheus.Counter
	instancesCrashed      prometheus.Counter
	compileCacheHitsTotal prometheus.Counter

	// Histograms
	invocationDuration *prometheus.HistogramVec
	coldStartDuration  *prometheus.HistogramVec

	// Gauges
	uptime          prometheus.GaugeFunc
	instancePool    *prometheus.GaugeVec
	poolUtilization *prometheus.GaugeVec
	activeRequests  prometheus.Gauge
	activeInstances prometheus.Gauge

	// Autoscaling
	autoscaleDesiredReplicas *prometheus.GaugeVec
	autoscaleDecisionsTotal  *prometheus.CounterVec

	// Admission control: requests rejected before or during execution
	// (ErrConcurrencyLimit, ErrNoHealthyTargets).
	admissionTotal *prometheus.CounterVec
	shedTotal      *prometheus.CounterVec

	// Circuit breaker
	circuitBreakerState      *prometheus.GaugeVec
	circuitBreakerTripsTotal *prometheus.CounterVec
}

// Default histogram buckets for invocation duration (in milliseconds)
var defaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

var promMetrics *PrometheusMetrics

// InitPrometheus initializes the Prometheus metrics subsystem
func InitPrometheus(namespace string, buckets []float64) {
	if buckets == nil || len(buckets) == 0 {
		buckets = defaultBuckets
	}

	registry := prometheus.NewRegistry()
	// Register default Go and process collectors
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	pm := &PrometheusMetrics{
		registry: registry,

		invocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invocations_total",
				Help:      "Total number of function invocations",
			},
			[]string{"function", "runtime", "status"},
		),

		coldStartsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cold_starts_total",
				Help:      "Total number of cold starts",
			},
		),

		warmStartsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "warm_starts_total",
				Help:      "Total number of warm starts",
			},
		),

		instancesCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "instances_created_total",
				Help:      "Total sandboxed instances created",
			},
		),

		instancesStopped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "instances_stopped_total",
				Help:      "Total sandboxed instances stopped",
			},
		),

		instancesCrashed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "instances_crashed_total",
				Help:      "Total sandboxed instances that crashed unexpectedly",
			},
		),

		compileCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compile_cache_hits_total",
				Help:      "Total compiler artifact cache hits",
			},
		),

		invocationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "invocation_duration_milliseconds",
				Help:      "Duration of function invocations in milliseconds",
				Buckets:   buckets,
			},
			[]string{"function", "runtime", "cold_start"},
		),

		coldStartDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cold_start_duration_milliseconds",
				Help:      "Duration of a cold-start compile+spawn in milliseconds",
				Buckets:   []float64{100, 250, 500, 1000, 2000, 3000, 5000, 10000},
			},
			[]string{"function", "runtime", "from_cache"},
		),

		instancePool: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pool_size",
				Help:      "Current healthy instance count by function and state",
			},
			[]string{"function", "state"},
		),

		poolUtilization: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pool_utilization_ratio",
				Help:      "Pool utilization ratio (busy / total) by function",
			},
			[]string{"function"},
		),

		activeRequests: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_requests",
				Help:      "Number of currently active invocation requests",
			},
		),

		activeInstances: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_instances",
				Help:      "Total number of active sandboxed instances across all function pools",
			},
		),

		autoscaleDesiredReplicas: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "autoscale_desired_replicas",
				Help:      "Current desired replica count set by autoscaler",
			},
			[]string{"function"},
		),

		autoscaleDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "autoscale_decisions_total",
				Help:      "Total auto-scaling decisions",
			},
			[]string{"function", "direction"},
		),

		admissionTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "admission_total",
				Help:      "Admission decisions by result and reason",
			},
			[]string{"function", "result", "reason"},
		),

		shedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "shed_total",
				Help:      "Load shedding events",
			},
			[]string{"function", "reason"},
		),

		circuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Current circuit breaker state (0=closed, 1=open, 2=half_open)",
			},
			[]string{"function"},
		),

		circuitBreakerTripsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_trips_total",
				Help:      "Total circuit breaker state transitions",
			},
			[]string{"function", "to_state"},
		),
	}

	pm.uptime = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Time since the fluxfaasd process started",
		},
		func() float64 {
			return time.Since(StartTime()).Seconds()
		},
	)

	registry.MustRegister(
		pm.invocationsTotal,
		pm.coldStartsTotal,
		pm.warmStartsTotal,
		pm.instancesCreated,
		pm.instancesStopped,
		pm.instancesCrashed,
		pm.compileCacheHitsTotal,
		pm.invocationDuration,
		pm.coldStartDuration,
		pm.uptime,
		pm.instancePool,
		pm.poolUtilization,
		pm.activeRequests,
		pm.activeInstances,
		pm.autoscaleDesiredReplicas,
		pm.autoscaleDecisionsTotal,
		pm.admissionTotal,
		pm.shedTotal,
		pm.circuitBreakerState,
		pm.circuitBreakerTripsTotal,
	)

	promMetrics = pm
}

// RecordPrometheusInvocation records an invocation in Prometheus collectors
func RecordPrometheusInvocation(funcName, runtime string, durationMs int64, coldStart bool, success bool) {
	if promMetrics == nil {
		return
	}

	status := "success"
	if !success {
		status = "failed"
	}
	promMetrics.invocationsTotal.WithLabelValues(funcName, runtime, status).Inc()

	if coldStart {
		promMetrics.coldStartsTotal.Inc()
	} else {
		promMetrics.warmStartsTotal.Inc()
	}

	coldLabel := "false"
	if coldStart {
		coldLabel = "true"
	}
	promMetrics.invocationDuration.WithLabelValues(funcName, runtime, coldLabel).Observe(float64(durationMs))
}

// RecordPrometheusInstanceCreated records a sandboxed instance creation in Prometheus
func RecordPrometheusInstanceCreated() {
	if promMetrics == nil {
		return
	}
	promMetrics.instancesCreated.Inc()
}

// RecordPrometheusInstanceStopped records a sandboxed instance stop in Prometheus
func RecordPrometheusInstanceStopped() {
	if promMetrics == nil {
		return
	}
	promMetrics.instancesStopped.Inc()
}

// RecordPrometheusInstanceCrashed records a sandboxed instance crash in Prometheus
func RecordPrometheusInstanceCrashed() {
	if promMetrics == nil {
		return
	}
	promMetrics.instancesCrashed.Inc()
}

// RecordPrometheusCompileCacheHit records a compiled-artifact cache hit in Prometheus
func RecordPrometheusCompileCacheHit() {
	if promMetrics == nil {
		return
	}
	promMetrics.compileCacheHitsTotal.Inc()
}

// SetPoolSize sets the current instance pool size for a function
func SetPoolSize(funcName string, idle, busy int) {
	if promMetrics == nil {
		return
	}
	promMetrics.instancePool.WithLabelValues(funcName, "idle").Set(float64(idle))
	promMetrics.instancePool.WithLabelValues(funcName, "busy").Set(float64(busy))

	total := idle + busy
	if total > 0 {
		promMetrics.poolUtilization.WithLabelValues(funcName).Set(float64(busy) / float64(total))
	}
}

// SetPoolLoad records a pool's average load ratio for a function.
func SetPoolLoad(funcName string, avgLoad float64) {
	if promMetrics == nil {
		return
	}
	promMetrics.poolUtilization.WithLabelValues(funcName).Set(avgLoad)
}

// RecordColdStartDuration records a cold-start compile+spawn duration in Prometheus
func RecordColdStartDuration(funcName, runtime string, durationMs int64, fromCache bool) {
	if promMetrics == nil {
		return
	}
	cacheLabel := "false"
	if fromCache {
		cacheLabel = "true"
	}
	promMetrics.coldStartDuration.WithLabelValues(funcName, runtime, cacheLabel).Observe(float64(durationMs))
}

// IncActiveRequests increments the active requests counter
func IncActiveRequests() {
	if promMetrics == nil {
		return
	}
	promMetrics.activeRequests.Inc()
}

// DecActiveRequests decrements the active requests counter
func DecActiveRequests() {
	if promMetrics == nil {
		return
	}
	promMetrics.activeRequests.Dec()
}

// SetActiveInstances sets the total number of active instances across all pools
func SetActiveInstances(count int) {
	if promMetrics == nil {
		return
	}
	promMetrics.activeInstances.Set(float64(count))
}

// PrometheusHandler returns an HTTP handler for Prometheus metrics scraping
func PrometheusHandler() http.Handler {
	if promMetrics == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("prometheus metrics not initialized"))
		})
	}
	return promhttp.HandlerFor(promMetrics.registry, promhttp.HandlerOpts{})
}

// PrometheusRegistry returns the prometheus registry (for custom collectors)
func PrometheusRegistry() *prometheus.Registry {
	if promMetrics == nil {
		return nil
	}
	return promMetrics.registry
}

// SetAutoscaleDesiredReplicas sets the desired replica gauge
func SetAutoscaleDesiredReplicas(funcName string, desired int) {
	if promMetrics == nil {
		return
	}
	promMetrics.autoscaleDesiredReplicas.WithLabelValues(funcName).Set(float64(desired))
}

// RecordAutoscaleDecision records an autoscale decision
func RecordAutoscaleDecision(funcName, direction string) {
	if promMetrics == nil {
		return
	}
	promMetrics.autoscaleDecisionsTotal.WithLabelValues(funcName, direction).Inc()
}

// RecordAdmissionResult records request admission/rejection decisions.
func RecordAdmissionResult(funcName, result, reason string) {
	if promMetrics == nil {
		return
	}
	promMetrics.admissionTotal.WithLabelValues(funcName, result, reason).Inc()
}

// RecordShed records load-shedding events for a function.
func RecordShed(funcName, reason string) {
	if promMetrics == nil {
		return
	}
	promMetrics.shedTotal.WithLabelValues(funcName, reason).Inc()
}

// SetCircuitBreakerState sets the circuit breaker state gauge for a function.
// state: 0=closed, 1=open, 2=half_open
func SetCircuitBreakerState(funcName string, state int) {
	if promMetrics == nil {
		return
	}
	promMetrics.circuitBreakerState.WithLabelValues(funcName).Set(float64(state))
}

// RecordCircuitBreakerTrip records a circuit breaker state transition.
func RecordCircuitBreakerTrip(funcName, toState string) {
	if promMetrics == nil {
		return
	}
	promMetrics.circuitBreakerTripsTotal.WithLabelValues(funcName, toState).Inc()
}
