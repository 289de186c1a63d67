package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecordPassesAndItems(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObservePass("ingest", "success", 250*time.Millisecond)
	m.ObservePass("ingest", "success", time.Second)
	m.AddItems("ingest", "added", 3)
	m.AddItems("ingest", "failed", 0)
	m.ObserveScore(11)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PassesTotal.WithLabelValues("ingest", "success")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ItemsTotal.WithLabelValues("ingest", "added")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.Scores))
}

func TestMetricsBreakerGauge(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.SetBreakerOpen("gmail", true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("gmail")))

	m.SetBreakerOpen("gmail", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("gmail")))
}
