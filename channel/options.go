package channel

import (
	"github.com/clyfe/systems-toolbox/message"
	"github.com/clyfe/systems-toolbox/metric"
)

// DropCallback is called when a message is dropped by a sliding channel.
type DropCallback func(msg message.Message)

// Option configures channel behavior using the functional options pattern.
type Option func(*chanOptions)

// chanOptions holds internal configuration for channel instances.
// Stats are always collected; metrics are optional via WithMetrics().
type chanOptions struct {
	dropCallback DropCallback

	// metricsReg is optional - if provided, channel stats are also exposed
	// as Prometheus metrics
	metricsReg    *metric.MetricsRegistry
	metricsPrefix string
}

// WithMetrics enables Prometheus metrics export for channel statistics.
// If registry is nil, this option is ignored.
func WithMetrics(registry *metric.MetricsRegistry, prefix string) Option {
	return func(opts *chanOptions) {
		if registry != nil && prefix != "" {
			opts.metricsReg = registry
			opts.metricsPrefix = prefix
		}
	}
}

// WithDropCallback sets a callback invoked with each dropped message.
func WithDropCallback(callback DropCallback) Option {
	return func(opts *chanOptions) {
		opts.dropCallback = callback
	}
}

// applyOptions applies functional options to create final configuration.
func applyOptions(options ...Option) *chanOptions {
	opts := &chanOptions{}
	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}
	return opts
}
