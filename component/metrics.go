package component

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/clyfe/systems-toolbox/metric"
)

// Metrics holds Prometheus metrics for one component's runtime.
type Metrics struct {
	msgsReceived       prometheus.Counter
	msgsEmitted        prometheus.Counter
	handlerErrors      prometheus.Counter
	snapshotsPublished prometheus.Counter
	lastActivity       prometheus.Gauge
}

// newMetrics creates and registers component runtime metrics.
// Returns nil if no registry is provided (nil input = nil feature pattern).
func newMetrics(registry *metric.MetricsRegistry, cmpID string) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &Metrics{
		msgsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "systems_toolbox",
			Subsystem:   "component",
			Name:        "msgs_received_total",
			ConstLabels: prometheus.Labels{"cmp_id": cmpID},
			Help:        "Total messages received on both input channels",
		}),
		msgsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "systems_toolbox",
			Subsystem:   "component",
			Name:        "msgs_emitted_total",
			ConstLabels: prometheus.Labels{"cmp_id": cmpID},
			Help:        "Total messages emitted through the put function",
		}),
		handlerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "systems_toolbox",
			Subsystem:   "component",
			Name:        "handler_errors_total",
			ConstLabels: prometheus.Labels{"cmp_id": cmpID},
			Help:        "Total handler panics caught by the error boundary",
		}),
		snapshotsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "systems_toolbox",
			Subsystem:   "component",
			Name:        "snapshots_published_total",
			ConstLabels: prometheus.Labels{"cmp_id": cmpID},
			Help:        "Total state snapshots published on sliding-out",
		}),
		lastActivity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "systems_toolbox",
			Subsystem:   "component",
			Name:        "last_activity_timestamp",
			ConstLabels: prometheus.Labels{"cmp_id": cmpID},
			Help:        "Unix timestamp of last received message",
		}),
	}

	if err := registry.RegisterCounter(cmpID, "msgs_received", m.msgsReceived); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(cmpID, "msgs_emitted", m.msgsEmitted); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(cmpID, "handler_errors", m.handlerErrors); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(cmpID, "snapshots_published", m.snapshotsPublished); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(cmpID, "last_activity", m.lastActivity); err != nil {
		return nil, err
	}

	return m, nil
}
