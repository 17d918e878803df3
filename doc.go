// Package systemstoolbox provides a library for composing concurrent
// applications out of isolated, single-responsibility components that
// communicate exclusively via typed messages on asynchronous channels.
//
// # Architecture
//
// Each component owns private mutable state, reacts to incoming messages
// via handler dispatch, and emits outgoing messages to other components
// wired to it by a higher-level topology manager (the "switchboard", which
// is not part of this library). The packages compose bottom-up:
//
//   - channel: buffer specs, FIFO and sliding message channels, Mult
//     fan-out, Pub topic publisher, Pipe splicing
//   - message: type tags, metadata (component sequence, correlation IDs,
//     tags, timing stamps), reserved runtime types
//   - state: the watchable state cell
//   - component: the per-component runtime: construction, handler loops,
//     emit function, snapshot publication, firehose observability stream
//   - relay: firehose adapter shells (NATS, WebSocket)
//   - metric: Prometheus registration and exposition
//   - config: file-based configuration for deployments
//
// # Observability
//
// Every component carries a secondary "firehose" stream wrapping each
// message it sends, receives, or publishes as state. Relay components
// forward the merged stream to external transports; they are configured
// with envelope wrapping disabled so the stream cannot feed back on
// itself.
//
// See the component package documentation for the concurrency contract.
package systemstoolbox
