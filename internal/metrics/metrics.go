// Package metrics exposes Prometheus instrumentation for the control plane:
// worktree counts by lifecycle state, pipeline durations, port-registry
// allocation counters, active PTY sessions, and the usual HTTP request
// metrics for the control API.
//
// Metric names, the Vec-per-dimension layout, and the package-level
// prometheus.MustRegister-in-init pattern all follow cuemby-warren's
// pkg/metrics; the metric set itself is specific to this domain.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// WorktreesTotal counts known worktrees by lifecycle state (active,
	// orphaned, stale) as last reported by a Collector tick.
	WorktreesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "controlplane_worktrees_total",
			Help: "Number of worktrees known to the control plane by state",
		},
		[]string{"state"},
	)

	// PortAllocationsTotal is the current count of allocated ports across
	// all worktrees, as last reported by a Collector tick.
	PortAllocationsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "controlplane_port_allocations_total",
			Help: "Number of ports currently allocated in the port registry",
		},
	)

	// ActivePTYSessions is the current count of live PTY sessions across
	// all worktrees, as last reported by a Collector tick.
	ActivePTYSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "controlplane_pty_sessions_active",
			Help: "Number of currently running PTY sessions",
		},
	)

	// ProgressSubscribers is the current count of clients subscribed to
	// the progress bus, as last reported by a Collector tick.
	ProgressSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "controlplane_progress_subscribers",
			Help: "Number of clients currently subscribed to the progress event bus",
		},
	)

	// PipelineRunsTotal counts pipeline completions by kind and outcome
	// (create/delete/sync/import/rollback × success/failure).
	PipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "controlplane_pipeline_runs_total",
			Help: "Total number of lifecycle pipeline runs by kind and status",
		},
		[]string{"kind", "status"},
	)

	// PipelineDuration records how long a pipeline run took, by kind.
	PipelineDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "controlplane_pipeline_duration_seconds",
			Help:    "Pipeline run duration in seconds by kind",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"kind"},
	)

	// PortAllocationEventsTotal counts individual Allocate/Release calls
	// against the port registry, separate from the point-in-time gauge
	// above.
	PortAllocationEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "controlplane_port_allocation_events_total",
			Help: "Total number of port registry allocate/release operations by result",
		},
		[]string{"operation", "result"},
	)

	// LogStreamLinesTotal counts log lines emitted by the log streamer, by
	// worktree and whether the sanitizer redacted anything from the line.
	LogStreamLinesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "controlplane_log_stream_lines_total",
			Help: "Total number of log lines streamed, by worktree and redaction status",
		},
		[]string{"worktree", "redacted"},
	)

	// APIRequestsTotal and APIRequestDuration instrument the control API's
	// HTTP surface, labeled by route and status code the way the teacher's
	// pack instruments its own API layer.
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "controlplane_api_requests_total",
			Help: "Total number of control API HTTP requests by route and status",
		},
		[]string{"route", "method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "controlplane_api_request_duration_seconds",
			Help:    "Control API HTTP request duration in seconds by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	// DiagnosticFindingsTotal counts diagnostic findings by check and
	// severity, one Collector tick behind a live Run (the Collector does
	// not itself run checks; a caller updates this via Observe after
	// running diagnostics.Runner.Run).
	DiagnosticFindingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "controlplane_diagnostic_findings_total",
			Help: "Total number of diagnostic findings by check and severity",
		},
		[]string{"check", "severity"},
	)
)

func init() {
	prometheus.MustRegister(WorktreesTotal)
	prometheus.MustRegister(PortAllocationsTotal)
	prometheus.MustRegister(ActivePTYSessions)
	prometheus.MustRegister(ProgressSubscribers)
	prometheus.MustRegister(PipelineRunsTotal)
	prometheus.MustRegister(PipelineDuration)
	prometheus.MustRegister(PortAllocationEventsTotal)
	prometheus.MustRegister(LogStreamLinesTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(DiagnosticFindingsTotal)
}

// Handler returns the Prometheus scrape handler for mounting on the control
// API's /metrics route.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer times an in-flight operation and reports it to a histogram on
// completion.
type Timer struct {
	start time.Time
}

// NewTimer starts a Timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to an unlabeled histogram.
func (t *Timer) ObserveDuration(h prometheus.Histogram) {
	h.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a labeled histogram.
func (t *Timer) ObserveDurationVec(h prometheus.ObserverVec, labels ...string) {
	h.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the Timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObservePipeline records one pipeline run's duration and outcome in one
// call, the shape worktreelifecycle and orchestrator callers reach for at
// the end of a Create/Delete/RunPhase.
func ObservePipeline(kind string, t *Timer, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	PipelineRunsTotal.WithLabelValues(kind, status).Inc()
	t.ObserveDurationVec(PipelineDuration, kind)
}
