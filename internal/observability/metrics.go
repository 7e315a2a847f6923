// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Backfill metrics
	RunsTotal        *prometheus.CounterVec
	RunDuration      prometheus.Histogram
	YearsProcessed   *prometheus.CounterVec
	RowsWritten      *prometheus.CounterVec
	RowsDropped      prometheus.Counter
	UnitFailures     *prometheus.CounterVec
	StateTransitions *prometheus.CounterVec

	// Registry metrics
	ContractsResolved prometheus.Gauge

	// Source metrics
	DownloadLatency prometheus.Histogram
	DownloadErrors  *prometheus.CounterVec
	BreakerState    prometheus.Gauge

	// Progress feed metrics
	ProgressSubscribers prometheus.Gauge

	// Health metrics
	LastSuccessfulRefresh prometheus.Gauge
	LastRefreshErrors     prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "cot_sentiment_lab"
	}

	return &Metrics{
		// Backfill metrics
		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "runs_total",
			Help:      "Total number of backfill runs by status",
		}, []string{"status"}),
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "run_duration_seconds",
			Help:      "Backfill run duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}),
		YearsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "years_processed_total",
			Help:      "Total number of report years processed by outcome",
		}, []string{"outcome"}),
		RowsWritten: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "rows_written_total",
			Help:      "Total number of rows upserted by table",
		}, []string{"table"}),
		RowsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "rows_dropped_total",
			Help:      "Total number of malformed input rows dropped at normalization",
		}),
		UnitFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "unit_failures_total",
			Help:      "Total number of per-unit failures by stage and kind",
		}, []string{"stage", "kind"}),
		StateTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "state_transitions_total",
			Help:      "Total number of year state transitions by target state",
		}, []string{"state"}),

		// Registry metrics
		ContractsResolved: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "contracts_known",
			Help:      "Number of contract names known to the last run",
		}),

		// Source metrics
		DownloadLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "download_latency_seconds",
			Help:      "Yearly report download latency in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60},
		}),
		DownloadErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "download_errors_total",
			Help:      "Total number of report download errors by reason",
		}, []string{"reason"}),
		BreakerState: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "breaker_state",
			Help:      "Source circuit breaker state (0=closed, 1=half-open, 2=open)",
		}),

		// Progress feed metrics
		ProgressSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "progress",
			Name:      "subscribers",
			Help:      "Current number of websocket progress subscribers",
		}),

		// Health metrics
		LastSuccessfulRefresh: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_refresh_timestamp",
			Help:      "Unix timestamp of last refresh run that recorded no errors",
		}),
		LastRefreshErrors: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_refresh_errors",
			Help:      "Number of errors recorded by the last refresh run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordRun records a finished backfill run.
func RecordRun(status string, durationSeconds float64, errorCount int, finishedAt int64) {
	DefaultMetrics.RunsTotal.WithLabelValues(status).Inc()
	DefaultMetrics.RunDuration.Observe(durationSeconds)
	DefaultMetrics.LastRefreshErrors.Set(float64(errorCount))
	if errorCount == 0 {
		DefaultMetrics.LastSuccessfulRefresh.Set(float64(finishedAt))
	}
}

// RecordYear records the outcome of one report year.
func RecordYear(outcome string) {
	DefaultMetrics.YearsProcessed.WithLabelValues(outcome).Inc()
}

// RecordRowsWritten adds n upserted rows for table.
func RecordRowsWritten(table string, n int) {
	DefaultMetrics.RowsWritten.WithLabelValues(table).Add(float64(n))
}

// RecordRowsDropped adds n dropped input rows.
func RecordRowsDropped(n int) {
	DefaultMetrics.RowsDropped.Add(float64(n))
}

// RecordUnitFailure records a per-unit failure.
func RecordUnitFailure(stage, kind string) {
	DefaultMetrics.UnitFailures.WithLabelValues(stage, kind).Inc()
}

// RecordTransition records a year state transition.
func RecordTransition(state string) {
	DefaultMetrics.StateTransitions.WithLabelValues(state).Inc()
}

// UpdateContractsKnown sets the known contracts gauge.
func UpdateContractsKnown(n int) {
	DefaultMetrics.ContractsResolved.Set(float64(n))
}

// RecordDownload records a report download attempt.
func RecordDownload(seconds float64, reason string) {
	DefaultMetrics.DownloadLatency.Observe(seconds)
	if reason != "" {
		DefaultMetrics.DownloadErrors.WithLabelValues(reason).Inc()
	}
}

// UpdateBreakerState sets the source circuit breaker gauge.
func UpdateBreakerState(state int) {
	DefaultMetrics.BreakerState.Set(float64(state))
}

// UpdateProgressSubscribers sets the progress subscribers gauge.
func UpdateProgressSubscribers(n int) {
	DefaultMetrics.ProgressSubscribers.Set(float64(n))
}
