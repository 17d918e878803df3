package component

import (
	"github.com/clyfe/systems-toolbox/message"
	"github.com/clyfe/systems-toolbox/state"
)

// EmitFn produces output from a handler. It is the sole legal means for
// user handlers to emit messages; it closes over the component's identity
// so every emission is tagged correctly. Emit on a shut-down component is
// a logged no-op.
type EmitFn func(msg message.Message)

// Context is passed to every handler invocation.
type Context struct {
	// Msg is the received message with its metadata attached.
	Msg message.Message

	// Type and Payload are the decomposed message.
	Type    message.Type
	Payload any

	// State is the component's state cell.
	State *state.Cell

	// PublishSnapshot publishes the current state snapshot on sliding-out.
	PublishSnapshot func()

	// Emit produces an outgoing message.
	Emit EmitFn
}

// Handler reacts to one message. Handlers may suspend; the runtime does
// not require them to. A panic escaping a handler is caught and logged,
// and the loop continues with the next message.
type Handler func(ctx *Context)

// StateResult is what a state initializer returns: the initial state and
// an optional shutdown closure releasing state-owned resources.
type StateResult struct {
	State    any
	Shutdown func()
}

// StateFn initializes the component's state. It receives the emit function
// so state-owned machinery (timers, connections) can produce messages.
type StateFn func(emit EmitFn) StateResult

// SnapshotXformFn projects the watched value to a publishable snapshot.
type SnapshotXformFn func(watched any) any
