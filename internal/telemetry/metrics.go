// Package telemetry provides Prometheus metrics for the viewer poll loop and export worker.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricPollTicksTotal   = "stream_poll_ticks_total"
	MetricPollTickDuration = "stream_poll_tick_duration_seconds"
	MetricActivePollers    = "stream_active_pollers"
	MetricExportJobsTotal  = "stream_export_jobs_total"
)

// Export job statuses.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Metrics contains Prometheus collectors for stream sessions. All operations are thread-safe.
type Metrics struct {
	ticks      *prometheus.CounterVec
	tickTime   *prometheus.HistogramVec
	active     prometheus.Gauge
	exportJobs *prometheus.CounterVec
}

// NewMetrics creates the collectors. Call Register to expose them.
func NewMetrics() *Metrics {
	return &Metrics{
		ticks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricPollTicksTotal,
				Help: "Viewer poll ticks by platform and outcome (ok, degraded, failed)",
			},
			[]string{"platform", "outcome"},
		),
		tickTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricPollTickDuration,
				Help:    "Duration of a viewer poll tick in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"platform"},
		),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricActivePollers,
			Help: "Sessions currently being polled by this instance",
		}),
		exportJobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricExportJobsTotal,
				Help: "Session export jobs processed by status",
			},
			[]string{"status"},
		),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveTick records one poll tick.
func (m *Metrics) ObserveTick(platform, outcome string, d time.Duration) {
	m.ticks.WithLabelValues(platform, outcome).Inc()
	m.tickTime.WithLabelValues(platform).Observe(d.Seconds())
}

// SetActivePollers sets the active poller gauge.
func (m *Metrics) SetActivePollers(n int) {
	m.active.Set(float64(n))
}

// IncExportJobs counts a processed export job.
func (m *Metrics) IncExportJobs(status string) {
	m.exportJobs.WithLabelValues(status).Inc()
}

// Collectors returns all Prometheus collectors.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.ticks, m.tickTime, m.active, m.exportJobs}
}
