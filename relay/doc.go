// Package relay provides firehose adapter components: shells that receive
// observability envelopes on a component's in-channel and forward them to
// an external transport (NATS subject, WebSocket clients).
//
// Relay components are constructed with MsgsOnFirehose disabled so their
// own emissions are never wrapped in envelopes; a relay that re-emitted
// firehose messages while also wrapping its emits would feed back on
// itself.
package relay
