package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndUnregister(t *testing.T) {
	r := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter_total",
		Help: "test",
	})
	require.NoError(t, r.RegisterCounter("svc", "counter", counter))

	// Duplicate registration is rejected
	assert.Error(t, r.RegisterCounter("svc", "counter", counter))

	assert.True(t, r.Unregister("svc", "counter"))
	assert.False(t, r.Unregister("svc", "counter"))

	// Re-registration after unregister succeeds
	require.NoError(t, r.RegisterCounter("svc", "counter", counter))
}

func TestRegisterGaugeAndHistogram(t *testing.T) {
	r := NewMetricsRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_gauge", Help: "test"})
	require.NoError(t, r.RegisterGauge("svc", "gauge", gauge))

	hist := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "test_hist", Help: "test"})
	require.NoError(t, r.RegisterHistogram("svc", "hist", hist))
}

func TestPrometheusRegistryGathers(t *testing.T) {
	r := NewMetricsRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gathered_total",
		Help: "test",
	})
	require.NoError(t, r.RegisterCounter("svc", "gathered", counter))
	counter.Add(3)

	families, err := r.PrometheusRegistry().Gather()
	require.NoError(t, err)

	found := false
	for _, f := range families {
		if f.GetName() == "gathered_total" {
			found = true
			assert.Equal(t, float64(3), f.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found)
}
