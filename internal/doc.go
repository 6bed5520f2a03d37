// Package internal contains helpers private to goFactor, chiefly secure
// random challenge and nonce generation.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: pure-function sign-in and factor orchestration
//   - logging: zap logger construction and context plumbing
//   - metrics: lock-free counters and latency histograms
//   - stores: Redis-backed pending challenges, counters and spent codes
//
// # What this package must NOT do
//
//   - Export types that appear in the public goFactor API.
//   - Be imported by any package outside the goFactor module.
package internal
