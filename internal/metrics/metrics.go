// Package metrics exposes the orchestrator's operational counters and
// gauges over Prometheus (spec.md SPEC_FULL.md ambient observability
// expansion — Non-goals exclude billing, not basic operational metrics).
// Grounded on the pack's package-level-vars-plus-init-registration pattern
// (cuemby-warren/pkg/metrics/metrics.go).
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP API surface metrics (§4.5).
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_http_requests_total",
			Help: "Total number of HTTP requests by method, path, and status.",
		},
		[]string{"method", "path", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orchestrator_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds by method and path.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Lifecycle Manager metrics (§4.4).
	SandboxesCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orchestrator_sandboxes_created_total",
			Help: "Total number of sandboxes successfully created.",
		},
	)

	SandboxesFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orchestrator_sandboxes_failed_total",
			Help: "Total number of sandbox creations that ended in failed.",
		},
	)

	SandboxesDestroyedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_sandboxes_destroyed_total",
			Help: "Total number of sandboxes destroyed, by stop_reason.",
		},
		[]string{"stop_reason"},
	)

	SandboxCreateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orchestrator_sandbox_create_duration_seconds",
			Help:    "Time from CreateSandbox call to the record reaching ready.",
			Buckets: prometheus.DefBuckets,
		},
	)

	ExecDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orchestrator_exec_duration_seconds",
			Help:    "Time taken by a single ExecInSandbox call.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Background loop metrics (§4.4 Background loops).
	ReconciliationRunsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orchestrator_reconciliation_runs_total",
			Help: "Total number of reconciliation passes started.",
		},
	)

	ReconciliationDriftTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orchestrator_reconciliation_drift_total",
			Help: "Total number of records recovered from engine drift.",
		},
	)

	ReconciliationOrphansTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orchestrator_reconciliation_orphans_total",
			Help: "Total number of live containers observed with no owning record.",
		},
	)

	ExpirySweepTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orchestrator_expiry_sweep_total",
			Help: "Total number of expiry sweep passes started.",
		},
	)

	SandboxesExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orchestrator_sandboxes_expired_total",
			Help: "Total number of sandboxes destroyed by the expiry loop.",
		},
	)

	LiveSandboxesGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orchestrator_live_sandboxes",
			Help: "Number of sandbox records currently in a non-terminal status.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		SandboxesCreatedTotal,
		SandboxesFailedTotal,
		SandboxesDestroyedTotal,
		SandboxCreateDuration,
		ExecDuration,
		ReconciliationRunsTotal,
		ReconciliationDriftTotal,
		ReconciliationOrphansTotal,
		ExpirySweepTotal,
		SandboxesExpiredTotal,
		LiveSandboxesGauge,
	)
}

// Handler returns the Prometheus scrape endpoint handler, mounted at
// /metrics by internal/api's Handler.RegisterRoutes.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures elapsed wall-clock time for a single operation.
type Timer struct {
	start time.Time
}

// NewTimer starts a Timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a label-scoped histogram.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labelValues ...string) {
	histogram.WithLabelValues(labelValues...).Observe(time.Since(t.start).Seconds())
}
