// Package observability defines the Prometheus metrics exported during a
// batch run.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "shread"

// Metrics holds the Prometheus counters and histograms for batch runs.
type Metrics struct {
	JobsTotal     *prometheus.CounterVec   // labels: product, outcome={ok,failed}
	StageFailures *prometheus.CounterVec   // labels: product, stage
	StageDuration *prometheus.HistogramVec // labels: product, stage
	JobsRunning   prometheus.Gauge

	Downloads     *prometheus.CounterVec // labels: scheme, outcome={success,error}
	DownloadBytes prometheus.Counter

	ArtifactWriteErrors *prometheus.CounterVec // labels: format
	ArtifactsWritten    *prometheus.CounterVec // labels: format
}

func counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}, labels)
}

// NewMetrics creates metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsTotal:     counterVec("jobs_total", "Completed jobs by product and outcome.", "product", "outcome"),
		StageFailures: counterVec("stage_failures_total", "Jobs abandoned at a pipeline stage.", "product", "stage"),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"product", "stage"}),
		JobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_running",
			Help:      "Jobs currently executing.",
		}),
		Downloads: counterVec("downloads_total", "Remote transfers by scheme and outcome.", "scheme", "outcome"),
		DownloadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_bytes_total",
			Help:      "Bytes transferred from remote providers.",
		}),
		ArtifactWriteErrors: counterVec("artifact_write_errors_total", "Output artifacts that failed to write.", "format"),
		ArtifactsWritten:    counterVec("artifacts_written_total", "Output artifacts written.", "format"),
	}
	reg.MustRegister(
		m.JobsTotal,
		m.StageFailures,
		m.StageDuration,
		m.JobsRunning,
		m.Downloads,
		m.DownloadBytes,
		m.ArtifactWriteErrors,
		m.ArtifactsWritten,
	)
	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

// ObserveDownload records a transfer outcome. It satisfies fetch.Observer.
func (m *Metrics) ObserveDownload(scheme string, bytes int64, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.Downloads.WithLabelValues(scheme, outcome).Inc()
	if bytes > 0 {
		m.DownloadBytes.Add(float64(bytes))
	}
}
