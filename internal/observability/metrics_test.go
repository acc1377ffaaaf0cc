package observability

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveDownload(t *testing.T) {
	m := NewMetricsForTesting()

	m.ObserveDownload("https", 1024, nil)
	m.ObserveDownload("https", 0, errors.New("boom"))
	m.ObserveDownload("ftp", 10, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Downloads.WithLabelValues("https", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Downloads.WithLabelValues("https", "error")))
	assert.Equal(t, 1034.0, testutil.ToFloat64(m.DownloadBytes))
}

func TestNewMetrics_RegistersAll(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.JobsTotal.WithLabelValues("snodas", "ok").Inc()
	m.StageDuration.WithLabelValues("snodas", "fetch").Observe(1)

	families, err := reg.Gather()
	assert.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["shread_jobs_total"])
	assert.True(t, names["shread_stage_duration_seconds"])
	assert.True(t, names["shread_download_bytes_total"])
}
