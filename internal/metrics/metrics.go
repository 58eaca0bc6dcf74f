// Package metrics exposes Prometheus counters for snapshot runs, fetches,
// imports and scheduled jobs.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ternarybob/vera/internal/models"
)

// Result labels
const (
	ResultOK     = "ok"
	ResultError  = "error"
	ResultCached = "cached"
)

// Registry holds all vera metrics on a private prometheus registry
type Registry struct {
	registry *prometheus.Registry

	SnapshotRuns     *prometheus.CounterVec
	SnapshotDuration prometheus.Histogram
	DrawdownState    *prometheus.GaugeVec
	RiskLevel        *prometheus.GaugeVec
	FetchRequests    *prometheus.CounterVec
	ImportedRows     *prometheus.CounterVec
	JobRuns          *prometheus.CounterVec
	JobDuration      *prometheus.HistogramVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

// NewRegistry creates and registers the metric set
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		SnapshotRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vera_snapshot_runs_total",
				Help: "Snapshot runs by result",
			},
			[]string{"result"},
		),

		SnapshotDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vera_snapshot_duration_seconds",
				Help:    "Duration of a single snapshot run",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),

		DrawdownState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vera_drawdown_state",
				Help: "Confirmed drawdown state (0 = D0 .. 6 = D6) of the latest snapshot",
			},
			[]string{"asset_id"},
		),

		RiskLevel: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vera_risk_level",
				Help: "Risk level of the latest snapshot (0 low, 1 medium, 2 high)",
			},
			[]string{"asset_id"},
		),

		FetchRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vera_fetch_requests_total",
				Help: "Market data provider requests by endpoint and result",
			},
			[]string{"endpoint", "result"},
		),

		ImportedRows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vera_imported_rows_total",
				Help: "Price rows written by outcome",
			},
			[]string{"outcome"},
		),

		JobRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vera_job_runs_total",
				Help: "Scheduled job executions by job and result",
			},
			[]string{"job", "result"},
		),

		JobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vera_job_duration_seconds",
				Help:    "Duration of scheduled job executions",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
			},
			[]string{"job"},
		),

		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vera_http_requests_total",
				Help: "API requests by route group and status code",
			},
			[]string{"route", "code"},
		),

		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vera_http_request_duration_seconds",
				Help:    "API request latency by route group",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}

	r.registry.MustRegister(
		r.SnapshotRuns,
		r.SnapshotDuration,
		r.DrawdownState,
		r.RiskLevel,
		r.FetchRequests,
		r.ImportedRows,
		r.JobRuns,
		r.JobDuration,
		r.HTTPRequests,
		r.HTTPDuration,
	)
	return r
}

// Handler serves the registry in the Prometheus text format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveSnapshot records one snapshot run. data may be nil when err is set.
func (r *Registry) ObserveSnapshot(data *models.DashboardData, elapsed time.Duration, cached bool, err error) {
	switch {
	case err != nil:
		r.SnapshotRuns.WithLabelValues(ResultError).Inc()
		return
	case cached:
		r.SnapshotRuns.WithLabelValues(ResultCached).Inc()
	default:
		r.SnapshotRuns.WithLabelValues(ResultOK).Inc()
	}
	r.SnapshotDuration.Observe(elapsed.Seconds())

	if data == nil {
		return
	}
	if data.Drawdown != nil {
		r.DrawdownState.WithLabelValues(data.AssetID).Set(float64(data.Drawdown.State))
	}
	r.RiskLevel.WithLabelValues(data.AssetID).Set(riskValue(data.RiskLevel()))
}

// ObserveFetch records one provider request
func (r *Registry) ObserveFetch(endpoint string, err error) {
	r.FetchRequests.WithLabelValues(endpoint, result(err)).Inc()
}

// ObserveImport adds a write summary to the row counters
func (r *Registry) ObserveImport(summary models.UpsertSummary) {
	r.ImportedRows.WithLabelValues("inserted").Add(float64(summary.Inserted))
	r.ImportedRows.WithLabelValues("updated").Add(float64(summary.Updated))
	r.ImportedRows.WithLabelValues("skipped").Add(float64(summary.Skipped))
}

// ObserveJob records one scheduled job execution
func (r *Registry) ObserveJob(name string, elapsed time.Duration, err error) {
	r.JobRuns.WithLabelValues(name, result(err)).Inc()
	r.JobDuration.WithLabelValues(name).Observe(elapsed.Seconds())
}

// ObserveHTTP records one API request. route must be low cardinality.
func (r *Registry) ObserveHTTP(route string, status int, elapsed time.Duration) {
	r.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	r.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}

func riskValue(level models.RiskLevel) float64 {
	switch level {
	case models.RiskLow:
		return 0
	case models.RiskHigh:
		return 2
	}
	return 1
}
