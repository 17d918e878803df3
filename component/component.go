package component

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/clyfe/systems-toolbox/channel"
	"github.com/clyfe/systems-toolbox/errors"
	"github.com/clyfe/systems-toolbox/message"
	"github.com/clyfe/systems-toolbox/metric"
	"github.com/clyfe/systems-toolbox/pkg/timestamp"
	"github.com/clyfe/systems-toolbox/state"
)

// Version of the component runtime, reported via Meta and the demo binary.
const Version = "0.1.0"

// Component is the assembled per-component runtime record. Immutable after
// construction except for the state cell.
type Component struct {
	id   string
	opts *Options

	log *Logger

	inChan         *channel.Chan
	slidingInChan  *channel.Chan
	outChan        *channel.Chan
	slidingOutChan *channel.Chan
	firehoseChan   *channel.Chan

	// putChan buffers emissions between construction and system-ready
	putChan *channel.Chan

	outMult      *channel.Mult
	outPub       *channel.Pub
	stateMult    *channel.Mult
	statePub     *channel.Pub
	firehoseMult *channel.Mult

	stateCell     *state.Cell
	stateShutdown func()
	snapshotXform SnapshotXformFn

	handlers         map[message.Type]Handler
	allMsgsHandler   Handler
	unhandledHandler Handler
	statePubHandler  Handler

	readyOnce    sync.Once
	shutdownOnce sync.Once
	ready        atomic.Bool
	running      atomic.Bool
	startTime    time.Time

	unsubWatch func()
	dirty      atomic.Bool
	tickDone   chan struct{}

	// Flow counters
	msgsReceived       atomic.Int64
	msgsEmitted        atomic.Int64
	handlerErrors      atomic.Int64
	snapshotsPublished atomic.Int64
	lastActivity       atomic.Value // stores time.Time

	metrics *Metrics
}

// Deps holds construction parameters for a component.
type Deps struct {
	// ID is the stable component identifier. Required.
	ID string

	// StateFn initializes the state cell. Optional; nil state when absent.
	StateFn StateFn

	// Handlers maps message types to handlers for the ordered input.
	Handlers map[message.Type]Handler

	// AllMsgsHandler, when set, is invoked on every ordered message
	// regardless of type-specific dispatch.
	AllMsgsHandler Handler

	// UnhandledHandler, when set, is invoked for ordered messages whose
	// type has no registered handler.
	UnhandledHandler Handler

	// StatePubHandler, when set, is invoked for messages on the sliding
	// input (peer state snapshots, pointer streams).
	StatePubHandler Handler

	// SnapshotXform projects the watched value to a publishable snapshot.
	// Identity when nil.
	SnapshotXform SnapshotXformFn

	// Opts carries the recognised configuration options; nil for defaults.
	Opts *Options

	// Logger is the structured logger. slog.Default() when nil.
	Logger *slog.Logger

	// NATSConn, when non-nil, streams the component's log entries to the
	// `logs.{cmp-id}` subject in addition to local logging.
	NATSConn *nats.Conn

	// MetricsRegistry enables Prometheus runtime metrics when non-nil.
	MetricsRegistry *metric.MetricsRegistry
}

// New constructs a component: channels, emit function, state cell, snapshot
// publisher, fan-outs, change watcher, and both handler loops, which start
// immediately. Emissions are buffered until SystemReady.
func New(deps Deps) (*Component, error) {
	if deps.ID == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Component", "New",
			"component ID validation")
	}

	opts := deps.Opts
	if opts == nil {
		opts = DefaultOptions()
	}
	if err := opts.normalize(); err != nil {
		return nil, errors.Wrap(err, "Component", "New", "options validation")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("cmp_id", deps.ID)
	}

	c := &Component{
		id:            deps.ID,
		opts:          opts,
		log:           NewLogger(deps.ID, deps.NATSConn, logger),
		snapshotXform: deps.SnapshotXform,
		handlers:      deps.Handlers,

		allMsgsHandler:   deps.AllMsgsHandler,
		unhandledHandler: deps.UnhandledHandler,
		statePubHandler:  deps.StatePubHandler,

		startTime: time.Now(),
	}
	if c.handlers == nil {
		c.handlers = map[message.Type]Handler{}
	}
	if c.snapshotXform == nil {
		c.snapshotXform = func(watched any) any { return watched }
	}
	c.lastActivity.Store(time.Time{})

	if deps.MetricsRegistry != nil {
		m, err := newMetrics(deps.MetricsRegistry, deps.ID)
		if err != nil {
			return nil, errors.Wrap(err, "Component", "New", "metrics registration")
		}
		c.metrics = m
	}

	// Channel set. The put-channel is distinct from the out-channel and
	// sized by the same spec.
	var err error
	if c.inChan, err = channel.New(opts.InChan); err != nil {
		return nil, errors.Wrap(err, "Component", "New", "in-chan creation")
	}
	if c.slidingInChan, err = channel.New(opts.SlidingInChan); err != nil {
		return nil, errors.Wrap(err, "Component", "New", "sliding-in-chan creation")
	}
	if c.outChan, err = channel.New(opts.OutChan); err != nil {
		return nil, errors.Wrap(err, "Component", "New", "out-chan creation")
	}
	if c.slidingOutChan, err = channel.New(opts.SlidingOutChan); err != nil {
		return nil, errors.Wrap(err, "Component", "New", "sliding-out-chan creation")
	}
	if c.firehoseChan, err = channel.New(opts.FirehoseChan); err != nil {
		return nil, errors.Wrap(err, "Component", "New", "firehose-chan creation")
	}
	if c.putChan, err = channel.New(opts.OutChan); err != nil {
		return nil, errors.Wrap(err, "Component", "New", "put-chan creation")
	}

	// State cell; the initializer receives the emit function so state-owned
	// machinery can produce messages.
	var initial any
	if deps.StateFn != nil {
		res := deps.StateFn(c.Emit)
		initial = res.State
		c.stateShutdown = res.Shutdown
	}
	c.stateCell = state.NewCell(initial, logger)

	// Fan-out mult on the out-channel, a type-keyed publisher tapped off
	// the mult, and a type-keyed publisher for snapshots on sliding-out.
	c.outMult = channel.NewMult(c.outChan)
	pubTap := channel.MustNew(opts.OutChan)
	c.outMult.Tap(pubTap)
	c.outPub = channel.NewPub(pubTap, channel.KeyByType)

	c.stateMult = channel.NewMult(c.slidingOutChan)
	stateTap := channel.MustNew(opts.SlidingOutChan)
	c.stateMult.Tap(stateTap)
	c.statePub = channel.NewPub(stateTap, channel.KeyByType)

	c.firehoseMult = channel.NewMult(c.firehoseChan)

	c.installWatcher()

	c.running.Store(true)

	go c.msgLoop(c.inChan, false)
	go c.msgLoop(c.slidingInChan, true)

	return c, nil
}

// ID returns the component identifier.
func (c *Component) ID() string {
	return c.id
}

// InChan is the ordered command input.
func (c *Component) InChan() *channel.Chan {
	return c.inChan
}

// SlidingInChan is the latest-only input for high-rate streams.
func (c *Component) SlidingInChan() *channel.Chan {
	return c.slidingInChan
}

// OutMult is the fan-out over the out-channel.
func (c *Component) OutMult() *channel.Mult {
	return c.outMult
}

// OutPub is the out-channel topic publisher keyed on message type.
func (c *Component) OutPub() *channel.Pub {
	return c.outPub
}

// StateMult is the fan-out over the sliding-out channel.
func (c *Component) StateMult() *channel.Mult {
	return c.stateMult
}

// StatePub is the sliding-out topic publisher keyed on message type.
func (c *Component) StatePub() *channel.Pub {
	return c.statePub
}

// FirehoseMult is the fan-out over the firehose channel.
func (c *Component) FirehoseMult() *channel.Mult {
	return c.firehoseMult
}

// ReloadCmp reports the development reload flag, carried opaquely for the
// switchboard.
func (c *Component) ReloadCmp() bool {
	return c.opts.ReloadCmp
}

// StateSnapshot returns the current publishable snapshot: the watched
// projection of the state cell passed through the snapshot transform.
// Pure read; safe to call concurrently with handler execution.
func (c *Component) StateSnapshot() any {
	return c.snapshotXform(c.opts.Watch(c.stateCell.Read()))
}

// Emit is the component's put function: the sole means by which handlers
// produce output. It rewrites metadata (component sequence, out timestamp,
// fresh correlation ID, tag if absent), delivers the message to the
// internal put-channel, and publishes the firehose envelope.
//
// If the component has been shut down, emit is a no-op and the error is
// logged but not propagated.
func (c *Component) Emit(msg message.Message) {
	meta := msg.Meta.Clone()
	meta.AppendSeq(c.id, message.DirectionOut)
	meta.StampOut(c.id)
	meta.CorrID = message.NewID()
	if meta.Tag == "" {
		meta.Tag = message.NewID()
	}
	msg.Meta = meta

	// Messages in the reserved firehose namespace are forwarded verbatim
	// to the firehose channel regardless of configuration; this is how
	// relay components merge firehose streams without feeding back on
	// themselves.
	if msg.Type.IsFirehose() {
		c.firehosePut(msg)
	} else if c.opts.MsgsOnFirehose {
		c.firehosePut(message.New(message.TypeFirehosePut, message.FirehoseMsg{
			CmpID: c.id,
			Msg:   msg,
			Meta:  meta,
			TS:    timestamp.Now(),
		}))
	}

	if err := c.putChan.Put(msg); err != nil {
		c.log.Error("Emit on shut-down component dropped", err,
			"msg_type", msg.Type.Key())
		return
	}

	c.msgsEmitted.Add(1)
	if c.metrics != nil {
		c.metrics.msgsEmitted.Inc()
	}
}

// firehosePut publishes an envelope; failures are logged at debug level
// only since the firehose is best-effort observability.
func (c *Component) firehosePut(msg message.Message) {
	if err := c.firehoseChan.Put(msg); err != nil {
		c.log.Debug("Firehose publication dropped", "error", err)
	}
}

// PublishSnapshot reads the watched state, applies the snapshot transform,
// and emits the result on the sliding-out channel with from-metadata.
// Because the channel is sliding, downstream subscribers always see the
// most recent snapshot; intermediate snapshots may be discarded.
func (c *Component) PublishSnapshot() {
	snapshot := c.StateSnapshot()

	msg := message.New(message.TypeAppState, snapshot)
	msg.Meta = &message.Meta{From: c.id}

	if err := c.slidingOutChan.Put(msg); err != nil {
		c.log.Error("Snapshot publication on shut-down component dropped", err)
		return
	}

	c.snapshotsPublished.Add(1)
	if c.metrics != nil {
		c.metrics.snapshotsPublished.Inc()
	}

	if c.opts.SnapshotsOnFirehose {
		c.firehosePut(message.New(message.TypeFirehosePublishState, message.FirehoseSnapshot{
			CmpID:    c.id,
			Snapshot: snapshot,
			TS:       timestamp.Now(),
		}))
	}
}

// installWatcher registers the change detector on the state cell. The
// watcher compares watched projections so no snapshot is published unless
// the watched value actually changed.
func (c *Component) installWatcher() {
	watch := c.opts.Watch

	switch c.opts.SnapshotMode {
	case SnapshotTick:
		c.tickDone = make(chan struct{})
		c.unsubWatch = c.stateCell.Subscribe(func(old, new any) {
			if !reflect.DeepEqual(watch(old), watch(new)) {
				c.dirty.Store(true)
			}
		})
		go c.tickLoop()
	default:
		c.unsubWatch = c.stateCell.Subscribe(func(old, new any) {
			if !reflect.DeepEqual(watch(old), watch(new)) {
				c.PublishSnapshot()
			}
		})
	}
}

// tickLoop publishes at most one snapshot per frame tick while changes
// keep arriving.
func (c *Component) tickLoop() {
	ticker := time.NewTicker(c.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.tickDone:
			// Flush a pending change so the last mutation is published
			if c.dirty.Swap(false) {
				c.PublishSnapshot()
			}
			return
		case <-ticker.C:
			if c.dirty.Swap(false) {
				c.PublishSnapshot()
			}
		}
	}
}

// msgLoop is one handler loop; each component runs two, one per input
// channel. Each iteration awaits a message, attaches reception metadata,
// dispatches behind an error boundary, and on the sliding path throttles
// before accepting the next message.
func (c *Component) msgLoop(ch *channel.Chan, sliding bool) {
	for {
		msg, ok := ch.Take()
		if !ok {
			return
		}

		c.msgsReceived.Add(1)
		c.lastActivity.Store(time.Now())
		if c.metrics != nil {
			c.metrics.msgsReceived.Inc()
			c.metrics.lastActivity.Set(float64(time.Now().Unix()))
		}

		meta := msg.Meta.Clone()
		meta.AppendSeq(c.id, message.DirectionIn)
		meta.StampIn(c.id)
		msg.Meta = meta

		c.dispatch(msg, sliding)

		if sliding {
			time.Sleep(c.opts.Throttle)
		}
	}
}

// dispatch routes one message. Any panic escaping a handler is caught and
// logged with the component ID and the offending message; the loop
// continues with the next message.
func (c *Component) dispatch(msg message.Message, sliding bool) {
	defer func() {
		if r := recover(); r != nil {
			c.handlerErrors.Add(1)
			if c.metrics != nil {
				c.metrics.handlerErrors.Inc()
			}
			c.log.Error("Handler panicked", nil,
				"msg_type", msg.Type.Key(),
				"msg", fmt.Sprintf("%v", msg.Payload),
				"panic", r)
		}
	}()

	hctx := &Context{
		Msg:             msg,
		Type:            msg.Type,
		Payload:         msg.Payload,
		State:           c.stateCell,
		PublishSnapshot: c.PublishSnapshot,
		Emit:            c.Emit,
	}

	if sliding {
		if c.statePubHandler != nil {
			c.statePubHandler(hctx)
		}
		if c.opts.SnapshotsOnFirehose && !msg.Type.IsFirehose() {
			c.firehosePut(message.New(message.TypeFirehoseRecvState, message.FirehoseState{
				CmpID: c.id,
				Msg:   msg,
			}))
		}
		return
	}

	if c.opts.MsgsOnFirehose && !msg.Type.IsFirehose() {
		c.firehosePut(message.New(message.TypeFirehoseRecv, message.FirehoseMsg{
			CmpID: c.id,
			Msg:   msg,
			Meta:  msg.Meta,
			TS:    timestamp.Now(),
		}))
	}

	builtin := true
	switch {
	case msg.Type.Equal(message.TypeGetState):
		c.Emit(message.New(message.TypeStateSnapshot, message.SnapshotPayload{
			CmpID:    c.id,
			Snapshot: c.StateSnapshot(),
		}))
	case msg.Type.Equal(message.TypePublishState):
		c.PublishSnapshot()
	default:
		builtin = false
	}

	if handler, ok := c.handlers[msg.Type]; ok {
		handler(hctx)
	} else if !builtin && c.unhandledHandler != nil {
		c.unhandledHandler(hctx)
	}

	if c.allMsgsHandler != nil {
		c.allMsgsHandler(hctx)
	}
}

// SystemReady is invoked once by the switchboard after all components are
// constructed and all inter-component pipes are wired. It splices the
// put-channel into the out-channel, releasing any messages buffered since
// construction, and publishes the initial snapshot to seed downstream
// state views. Idempotent.
func (c *Component) SystemReady() {
	c.readyOnce.Do(func() {
		c.ready.Store(true)
		channel.Pipe(c.putChan, c.outChan, true)
		c.PublishSnapshot()
	})
}

// Shutdown closes the component's inputs, causing both handler loops to
// exit cleanly, stops the change detector, and invokes the state-owned
// shutdown closure. Messages already dispatched run to completion; later
// emits are logged and dropped. Idempotent.
func (c *Component) Shutdown() {
	c.shutdownOnce.Do(func() {
		c.running.Store(false)

		c.inChan.Close()
		c.slidingInChan.Close()

		if c.unsubWatch != nil {
			c.unsubWatch()
		}
		if c.tickDone != nil {
			close(c.tickDone)
		}

		c.putChan.Close()
		if !c.ready.Load() {
			// No splice ever started; close the out-channel directly so
			// the fan-out and publishers wind down.
			c.outChan.Close()
		}
		c.slidingOutChan.Close()
		c.firehoseChan.Close()

		if c.stateShutdown != nil {
			c.stateShutdown()
		}
	})
}
