// Package channel provides the asynchronous channel primitives the component
// runtime is built on: bounded FIFO and sliding (latest-only) message
// channels, a Mult fan-out, a Pub topic publisher, and a Pipe splice.
//
// Channels carry message.Message values and are thread-safe. FIFO channels
// block producers at capacity; sliding channels drop the oldest element and
// never block producers. Statistics are always collected; Prometheus metrics
// can be enabled via the WithMetrics functional option.
package channel
