package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/clyfe/systems-toolbox/channel"
	"github.com/clyfe/systems-toolbox/component"
	"github.com/clyfe/systems-toolbox/errors"
	"github.com/clyfe/systems-toolbox/metric"
	"github.com/clyfe/systems-toolbox/pkg/retry"
)

// NATSRelayDeps holds runtime dependencies for the NATS firehose relay.
type NATSRelayDeps struct {
	Name            string // Instance name; also the inner component ID
	URL             string // NATS server URL
	Subject         string // Subject envelopes are published on
	Logger          *slog.Logger
	MetricsRegistry *metric.MetricsRegistry
}

// NATSRelay forwards firehose envelopes received on its in-channel to a
// NATS subject as JSON. The switchboard taps other components' firehose
// fan-outs into this relay's in-channel.
type NATSRelay struct {
	name    string
	url     string
	subject string
	logger  *slog.Logger

	cmp *component.Component

	retryConfig retry.Config

	mu        sync.RWMutex
	nc        *nats.Conn
	running   atomic.Bool
	startTime time.Time

	published atomic.Int64
	dropped   atomic.Int64
}

// NewNATSRelay creates the relay and its inner component. The component's
// handler loops start immediately; nothing is published until Start
// establishes the NATS connection.
func NewNATSRelay(deps NATSRelayDeps) (*NATSRelay, error) {
	name := deps.Name
	if name == "" {
		name = "firehose-nats-relay"
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", name)
	}

	r := &NATSRelay{
		name:        name,
		url:         deps.URL,
		subject:     deps.Subject,
		logger:      logger,
		retryConfig: retry.Quick(),
	}

	opts := component.DefaultOptions()
	opts.InChan = channel.Fixed(64)
	opts.MsgsOnFirehose = false
	opts.SnapshotsOnFirehose = false

	cmp, err := component.New(component.Deps{
		ID:              name,
		AllMsgsHandler:  r.forward,
		Opts:            opts,
		Logger:          logger,
		MetricsRegistry: deps.MetricsRegistry,
	})
	if err != nil {
		return nil, errors.Wrap(err, "NATSRelay", "New", "inner component construction")
	}
	r.cmp = cmp

	return r, nil
}

// Component exposes the inner component for switchboard wiring.
func (r *NATSRelay) Component() *component.Component {
	return r.cmp
}

// Published returns the number of envelopes published to NATS.
func (r *NATSRelay) Published() int64 {
	return r.published.Load()
}

// forward publishes one firehose envelope to the configured subject.
// Non-firehose messages are ignored; envelopes arriving before the NATS
// connection is up are counted as dropped.
func (r *NATSRelay) forward(ctx *component.Context) {
	if !ctx.Type.IsFirehose() {
		return
	}

	r.mu.RLock()
	nc := r.nc
	r.mu.RUnlock()

	if nc == nil {
		r.dropped.Add(1)
		return
	}

	data, err := json.Marshal(ctx.Msg)
	if err != nil {
		r.dropped.Add(1)
		r.logger.Error("Failed to marshal firehose envelope", "error", err)
		return
	}

	if err := nc.Publish(r.subject, data); err != nil {
		r.dropped.Add(1)
		r.logger.Error("Failed to publish firehose envelope", "error", err, "subject", r.subject)
		return
	}

	r.published.Add(1)
}

// Initialize validates the relay configuration.
func (r *NATSRelay) Initialize() error {
	if r.url == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "NATSRelay", "Initialize",
			"NATS URL validation")
	}
	if r.subject == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "NATSRelay", "Initialize",
			"subject validation")
	}
	return nil
}

// Start connects to NATS with retry and marks the relay running.
func (r *NATSRelay) Start(ctx context.Context) error {
	if r.running.Load() {
		return nil // Already running, idempotent
	}

	connect := func() error {
		nc, err := nats.Connect(r.url,
			nats.Name(r.name),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second))
		if err != nil {
			return err
		}
		r.mu.Lock()
		r.nc = nc
		r.mu.Unlock()
		return nil
	}

	if err := retry.Do(ctx, r.retryConfig, connect); err != nil {
		return errors.WrapTransient(err, "NATSRelay", "Start", "NATS connection")
	}

	r.running.Store(true)
	r.startTime = time.Now()
	r.cmp.SystemReady()
	r.logger.Info("Firehose NATS relay started", "url", r.url, "subject", r.subject)
	return nil
}

// Stop shuts down the inner component and drains the NATS connection.
func (r *NATSRelay) Stop(timeout time.Duration) error {
	if !r.running.Load() {
		return nil
	}
	r.running.Store(false)

	r.cmp.Shutdown()

	r.mu.Lock()
	nc := r.nc
	r.nc = nil
	r.mu.Unlock()

	if nc != nil {
		drained := make(chan error, 1)
		go func() { drained <- nc.Drain() }()
		select {
		case err := <-drained:
			if err != nil {
				nc.Close()
				return errors.WrapTransient(err, "NATSRelay", "Stop", "connection drain")
			}
		case <-time.After(timeout):
			nc.Close()
			return errors.WrapTransient(fmt.Errorf("drain timeout after %v", timeout),
				"NATSRelay", "Stop", "graceful shutdown")
		}
	}

	return nil
}
