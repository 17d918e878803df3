package component

import (
	"time"

	"github.com/clyfe/systems-toolbox/channel"
	"github.com/clyfe/systems-toolbox/errors"
)

// SnapshotMode selects the change detector's scheduling discipline.
type SnapshotMode string

const (
	// SnapshotImmediate publishes synchronously from the watcher callback.
	SnapshotImmediate SnapshotMode = "immediate"

	// SnapshotTick rate-limits publication to a periodic frame tick
	// (nominally ~60 Hz), for UI-facing runtimes.
	SnapshotTick SnapshotMode = "tick"
)

// WatchFn projects the state cell value to the derived watched value.
type WatchFn func(state any) any

// Options holds the recognised component configuration. Start from
// DefaultOptions and override individual fields; New fills unset buffer
// specs and durations with defaults but leaves booleans as given.
type Options struct {
	// Buffer specs for the channel set
	InChan         channel.BufferSpec
	SlidingInChan  channel.BufferSpec
	OutChan        channel.BufferSpec
	SlidingOutChan channel.BufferSpec
	FirehoseChan   channel.BufferSpec

	// Throttle is the minimum delay between sliding-in handler invocations.
	// This back-pressures high-rate producers feeding sliding inputs.
	Throttle time.Duration

	// MsgsOnFirehose emits firehose envelopes for ordinary messages.
	// Relay components must set this to false to prevent infinite loops.
	MsgsOnFirehose bool

	// SnapshotsOnFirehose emits firehose envelopes for state snapshots.
	SnapshotsOnFirehose bool

	// ReloadCmp is a development flag honoured by the switchboard; the
	// runtime carries it opaquely.
	ReloadCmp bool

	// Watch projects the state cell to the watched value. Identity when nil.
	Watch WatchFn

	// SnapshotMode selects immediate or frame-tick snapshot scheduling.
	SnapshotMode SnapshotMode

	// TickInterval is the frame-tick period for SnapshotTick mode.
	TickInterval time.Duration
}

// DefaultOptions returns the documented defaults: FIFO buffers of 1 for
// ordered channels, sliding buffers of 1 for the latest-only channels,
// 1ms throttle, firehose envelopes on.
func DefaultOptions() *Options {
	return &Options{
		InChan:              channel.Fixed(1),
		SlidingInChan:       channel.Sliding(1),
		OutChan:             channel.Fixed(1),
		SlidingOutChan:      channel.Sliding(1),
		FirehoseChan:        channel.Fixed(1),
		Throttle:            time.Millisecond,
		MsgsOnFirehose:      true,
		SnapshotsOnFirehose: true,
		ReloadCmp:           true,
		SnapshotMode:        SnapshotImmediate,
		TickInterval:        16 * time.Millisecond,
	}
}

// normalize fills unset fields with defaults and validates buffer specs.
func (o *Options) normalize() error {
	defaults := DefaultOptions()

	if o.InChan.Kind == "" {
		o.InChan = defaults.InChan
	}
	if o.SlidingInChan.Kind == "" {
		o.SlidingInChan = defaults.SlidingInChan
	}
	if o.OutChan.Kind == "" {
		o.OutChan = defaults.OutChan
	}
	if o.SlidingOutChan.Kind == "" {
		o.SlidingOutChan = defaults.SlidingOutChan
	}
	if o.FirehoseChan.Kind == "" {
		o.FirehoseChan = defaults.FirehoseChan
	}
	if o.Throttle <= 0 {
		o.Throttle = defaults.Throttle
	}
	if o.Watch == nil {
		o.Watch = func(state any) any { return state }
	}
	if o.SnapshotMode == "" {
		o.SnapshotMode = SnapshotImmediate
	}
	if o.TickInterval <= 0 {
		o.TickInterval = defaults.TickInterval
	}

	for _, spec := range []channel.BufferSpec{
		o.InChan, o.SlidingInChan, o.OutChan, o.SlidingOutChan, o.FirehoseChan,
	} {
		if err := spec.Validate(); err != nil {
			return errors.WrapInvalid(err, "Options", "normalize", "buffer spec validation")
		}
	}

	switch o.SnapshotMode {
	case SnapshotImmediate, SnapshotTick:
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Options", "normalize",
			"unknown snapshot mode "+string(o.SnapshotMode))
	}

	return nil
}
