// Package stores provides Redis-backed records for second-factor flows:
// single-use pending challenges, per-credential signature counters and
// spent time-based code steps.
//
// # Design
//
// Pending challenges are versioned, binary-encoded records with a TTL and an
// embedded expiry, consumed with GETDEL so a challenge is destroyed by the
// first attempt that reads it. Counter updates use WATCH/MULTI optimistic
// transactions with automatic retry on contention, so two concurrent
// assertions carrying the same counter can never both succeed.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for transient and
// anti-replay state. It does NOT verify signatures, call remote services or
// make authentication decisions; those belong to the factor providers.
//
// # What this package must NOT do
//
//   - Import goFactor or any sibling internal package.
//   - Log or expose challenge material.
package stores
