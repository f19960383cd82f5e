package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes Prometheus instrumentation for the deployment runner,
// the planner, and the policy gate. A disabled Metrics is a no-op: every
// recording method checks its collector for nil before use, so callers
// never need to branch on cfg.Enabled themselves.
type Metrics struct {
	config MetricsConfig

	deploymentsStarted   *prometheus.CounterVec
	deploymentsCompleted *prometheus.CounterVec
	deploymentDuration   *prometheus.HistogramVec

	operationsExecuted *prometheus.CounterVec
	operationDuration  *prometheus.HistogramVec

	statusEventsAppended prometheus.Counter
	policyViolations     *prometheus.CounterVec

	activeDeployments prometheus.Gauge
	heldOperations    prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics builds a Metrics collector. If cfg.Enabled is false, every
// recording method becomes a no-op and Handler serves 404.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,
		deploymentsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "deployments_started_total", Help: "Total deployments started",
		}, []string{"deployment_type"}),
		deploymentsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "deployments_completed_total", Help: "Total deployments completed",
		}, []string{"deployment_type", "state"}),
		deploymentDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "deployment_duration_seconds", Help: "Deployment wall-clock duration", Buckets: buckets,
		}, []string{"deployment_type", "state"}),
		operationsExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "operations_executed_total", Help: "Total operations executed by the runner",
		}, []string{"action", "state"}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "operation_duration_seconds", Help: "Operation execution duration", Buckets: buckets,
		}, []string{"action"}),
		statusEventsAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "status_events_appended_total", Help: "Total status log events appended",
		}),
		policyViolations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "policy_violations_total", Help: "Total policy violations raised by the deployment gate",
		}, []string{"policy", "severity"}),
		activeDeployments: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "active_deployments", Help: "1 if a deployment is RUNNING, else 0",
		}),
		heldOperations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "held_operations", Help: "Operations HELD by the most recent failure cascade",
		}),
	}

	registry.MustRegister(
		m.deploymentsStarted, m.deploymentsCompleted, m.deploymentDuration,
		m.operationsExecuted, m.operationDuration,
		m.statusEventsAppended, m.policyViolations,
		m.activeDeployments, m.heldOperations,
	)
	return m, nil
}

// RecordDeploymentStarted increments the started counter and sets the
// active-deployment gauge.
func (m *Metrics) RecordDeploymentStarted(deploymentType string) {
	if m.deploymentsStarted == nil {
		return
	}
	m.deploymentsStarted.WithLabelValues(deploymentType).Inc()
	m.activeDeployments.Set(1)
}

// RecordDeploymentCompleted records a terminal deployment state and
// duration, and clears the active-deployment gauge.
func (m *Metrics) RecordDeploymentCompleted(deploymentType, state string, duration time.Duration) {
	if m.deploymentsCompleted == nil {
		return
	}
	m.deploymentsCompleted.WithLabelValues(deploymentType, state).Inc()
	m.deploymentDuration.WithLabelValues(deploymentType, state).Observe(duration.Seconds())
	m.activeDeployments.Set(0)
}

// RecordOperation records one executed operation's action and terminal state.
func (m *Metrics) RecordOperation(action, state string, duration time.Duration) {
	if m.operationsExecuted == nil {
		return
	}
	m.operationsExecuted.WithLabelValues(action, state).Inc()
	m.operationDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordStatusEventAppended increments the status log append counter.
func (m *Metrics) RecordStatusEventAppended() {
	if m.statusEventsAppended == nil {
		return
	}
	m.statusEventsAppended.Inc()
}

// RecordPolicyViolation records one policy violation by policy name and severity.
func (m *Metrics) RecordPolicyViolation(policyName, severity string) {
	if m.policyViolations == nil {
		return
	}
	m.policyViolations.WithLabelValues(policyName, severity).Inc()
}

// SetHeldOperations sets the current count of HELD operations.
func (m *Metrics) SetHeldOperations(count float64) {
	if m.heldOperations == nil {
		return
	}
	m.heldOperations.Set(count)
}

// Timer is a small stopwatch helper for wrapping a block of work.
type Timer struct{ start time.Time }

// NewTimer starts a timer.
func NewTimer() *Timer { return &Timer{start: time.Now()} }

// Duration returns the elapsed time since NewTimer.
func (t *Timer) Duration() time.Duration { return time.Since(t.start) }

// Handler returns the HTTP handler serving this collector's registry,
// or a 404 handler if metrics are disabled.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// StartMetricsServer starts a background HTTP server exposing Handler
// at cfg.Path. It is a no-op if metrics are disabled.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())
	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		_ = server.ListenAndServe()
	}()
	return nil
}
