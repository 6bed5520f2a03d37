// Package audit implements async event dispatching for sign-in and
// second-factor outcomes.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, zap logger, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full or block-if-full semantics.
//   - [Event]: structured audit record with principal, factor kind, device and metadata.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which
// events to emit; the Engine and flow functions do.
//
// # What this package must NOT do
//
//   - Carry proofs, secrets or raw challenge material in events.
//   - Import goFactor or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
