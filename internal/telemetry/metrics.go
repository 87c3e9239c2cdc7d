// Package telemetry holds the Prometheus metrics of the report scheduler.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scry_reports"

// Metrics groups the scheduler collectors. A nil *Metrics is valid and
// records nothing, which keeps tests free of registry setup.
type Metrics struct {
	gatherer prometheus.Gatherer

	reportsSubmitted *prometheus.CounterVec
	reportsFinished  *prometheus.CounterVec
	reportDuration   *prometheus.HistogramVec
	stageDuration    *prometheus.HistogramVec
	queueDepth       *prometheus.GaugeVec
	inFlight         *prometheus.GaugeVec
	workers          *prometheus.GaugeVec
	unitAcquisitions *prometheus.CounterVec
	persistFailures  prometheus.Counter
	cacheEntries     prometheus.Gauge
	cacheEvictions   prometheus.Counter
}

// New registers the collectors on reg. Pass a fresh prometheus.NewRegistry()
// to isolate instances.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		gatherer: reg,

		reportsSubmitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "reports_submitted_total",
			Help:      "Total reports accepted by the dispatcher.",
		}, []string{"kind"}),

		reportsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "reports_finished_total",
			Help:      "Total reports that reached a terminal state, labelled by kind and state.",
		}, []string{"kind", "state"}),

		reportDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "report_duration_seconds",
			Help:      "Time from submission to terminal state.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"kind"}),

		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Stage execution time including unit acquisition.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"stage"}),

		queueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "pending_reports",
			Help:      "Reports waiting in the pending queue.",
		}, []string{"kind"}),

		inFlight: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "inflight_reports",
			Help:      "Reports currently being executed.",
		}, []string{"kind"}),

		workers: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "workers",
			Help:      "Spawned worker goroutines.",
		}, []string{"kind"}),

		unitAcquisitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "units",
			Name:      "acquisitions_total",
			Help:      "Unit acquisitions, labelled by capability and outcome (idle, fallback, none).",
		}, []string{"capability", "outcome"}),

		persistFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "persist_failures_total",
			Help:      "Report writes that failed and were dropped.",
		}),

		cacheEntries: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Reports held in the in-memory cache.",
		}),

		cacheEvictions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Reports evicted by the retention sweep.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ReportSubmitted counts an accepted report.
func (m *Metrics) ReportSubmitted(kind string) {
	if m == nil {
		return
	}
	m.reportsSubmitted.WithLabelValues(kind).Inc()
}

// ReportFinished counts a terminal report and observes its lifetime.
func (m *Metrics) ReportFinished(kind, state string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.reportsFinished.WithLabelValues(kind, state).Inc()
	m.reportDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// StageCompleted observes a stage run.
func (m *Metrics) StageCompleted(stage string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// QueueState sets the per-kind queue gauges.
func (m *Metrics) QueueState(kind string, pending, inFlight, workers int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(kind).Set(float64(pending))
	m.inFlight.WithLabelValues(kind).Set(float64(inFlight))
	m.workers.WithLabelValues(kind).Set(float64(workers))
}

// UnitAcquired counts an allocator outcome.
func (m *Metrics) UnitAcquired(capability, outcome string) {
	if m == nil {
		return
	}
	m.unitAcquisitions.WithLabelValues(capability, outcome).Inc()
}

// PersistFailed counts a dropped report write.
func (m *Metrics) PersistFailed() {
	if m == nil {
		return
	}
	m.persistFailures.Inc()
}

// CacheState sets the cache size and adds evictions.
func (m *Metrics) CacheState(entries, evicted int) {
	if m == nil {
		return
	}
	m.cacheEntries.Set(float64(entries))
	m.cacheEvictions.Add(float64(evicted))
}
