package channel

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/clyfe/systems-toolbox/metric"
)

// chanMetrics holds Prometheus metrics for channel operations.
type chanMetrics struct {
	writes    prometheus.Counter
	reads     prometheus.Counter
	overflows prometheus.Counter
	drops     prometheus.Counter

	size        prometheus.Gauge
	utilization prometheus.Gauge
}

// newChanMetrics creates and registers channel metrics with the provided registry.
func newChanMetrics(registry *metric.MetricsRegistry, prefix string) (*chanMetrics, error) {
	m := &chanMetrics{
		writes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "systems_toolbox",
			Subsystem:   "channel",
			Name:        "writes_total",
			ConstLabels: prometheus.Labels{"channel": prefix},
			Help:        "Total number of channel write operations",
		}),
		reads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "systems_toolbox",
			Subsystem:   "channel",
			Name:        "reads_total",
			ConstLabels: prometheus.Labels{"channel": prefix},
			Help:        "Total number of channel read operations",
		}),
		overflows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "systems_toolbox",
			Subsystem:   "channel",
			Name:        "overflows_total",
			ConstLabels: prometheus.Labels{"channel": prefix},
			Help:        "Total number of channel overflow events",
		}),
		drops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "systems_toolbox",
			Subsystem:   "channel",
			Name:        "drops_total",
			ConstLabels: prometheus.Labels{"channel": prefix},
			Help:        "Total number of messages dropped by sliding overflow",
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "systems_toolbox",
			Subsystem:   "channel",
			Name:        "size",
			ConstLabels: prometheus.Labels{"channel": prefix},
			Help:        "Current number of buffered messages",
		}),
		utilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "systems_toolbox",
			Subsystem:   "channel",
			Name:        "utilization",
			ConstLabels: prometheus.Labels{"channel": prefix},
			Help:        "Channel utilization as a fraction (0.0 to 1.0)",
		}),
	}

	if err := registry.RegisterCounter(prefix, "channel_writes", m.writes); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "channel_reads", m.reads); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "channel_overflows", m.overflows); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "channel_drops", m.drops); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(prefix, "channel_size", m.size); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(prefix, "channel_utilization", m.utilization); err != nil {
		return nil, err
	}

	return m, nil
}

// recordWrite increments the write counter and updates size/utilization.
func (m *chanMetrics) recordWrite(size, capacity int) {
	m.writes.Inc()
	m.size.Set(float64(size))
	m.utilization.Set(float64(size) / float64(capacity))
}

// recordRead increments the read counter and updates size/utilization.
func (m *chanMetrics) recordRead(size, capacity int) {
	m.reads.Inc()
	m.size.Set(float64(size))
	m.utilization.Set(float64(size) / float64(capacity))
}

// recordOverflow increments the overflow counter.
func (m *chanMetrics) recordOverflow() {
	m.overflows.Inc()
}

// recordDrop increments the drop counter.
func (m *chanMetrics) recordDrop() {
	m.drops.Inc()
}
