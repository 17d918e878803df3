// Package component implements the per-component runtime of the
// systems-toolbox message-passing architecture.
//
// A component is an addressable unit identified by a stable string ID. It
// owns private mutable state, reacts to incoming messages via handler
// dispatch, and emits outgoing messages to other components wired to it by
// an external switchboard. Components communicate exclusively through typed
// messages on asynchronous channels.
//
// # Channel set
//
// Each component owns four primary channels plus a firehose:
//
//   - in-channel: bounded FIFO for ordered commands
//   - sliding-in-channel: latest-only, for high-rate inputs such as UI
//     pointer events or peer state snapshots
//   - out-channel: FIFO with a fan-out Mult and a type-keyed Pub
//   - sliding-out-channel: latest-only, publishes this component's own
//     state snapshots
//   - firehose-channel: observability stream wrapping every ordinary
//     message the component sends, receives, or publishes as state
//
// # Lifecycle
//
// New constructs all channels, the state cell, and both handler loops,
// which start immediately. Emissions are buffered in an internal
// put-channel until the switchboard calls SystemReady, which splices the
// put-channel into the out-channel and publishes the initial state
// snapshot. Shutdown closes the inputs; handler loops exit cleanly.
//
// # Concurrency contract
//
// The two handler loops run concurrently. Messages on the ordered
// in-channel are processed in send order; there is no ordering guarantee
// between the two loops. The state cell is the only mutable resource a
// component owns; Swap gives handlers an atomic read-modify-write
// primitive. A handler exception never terminates a loop: a single bad
// message can never silence a component.
//
// Example:
//
//	cmp, err := component.New(component.Deps{
//	    ID: "ping",
//	    StateFn: func(emit component.EmitFn) component.StateResult {
//	        return component.StateResult{State: map[string]any{"count": 0}}
//	    },
//	    Handlers: map[message.Type]component.Handler{
//	        {Domain: "ping", Name: "req"}: func(ctx *component.Context) {
//	            ctx.Emit(message.New(message.Type{Domain: "pong", Name: "res"}, ctx.Payload))
//	        },
//	    },
//	})
package component
