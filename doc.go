// Package tokenward provides a credential-continuity and abuse-protection
// engine: Redis-backed sliding-window rate limiting with named policies,
// single-use rotating renewal credentials with family-wide reuse detection,
// and a login orchestrator with lockout and captcha escalation.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// tokenward is the public surface. It exposes [Engine], [Builder], [Config],
// and value types (LoginResult, RefreshResult, MetricsSnapshot, etc.). All
// internal coordination — limiter scripts, login escalation, audit
// dispatch — lives under internal/ and is never exported.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its
//     public API.
//   - Persist or log a raw renewal secret anywhere; only SHA-256 digests
//     touch storage.
//   - Perform I/O outside of Engine methods (construction via Builder is
//     allocation-only until Build).
//
// # Performance contract
//
// ValidateAccess is the hot path and completes without Redis round-trips.
// Login, Refresh, and the quota surface are allowed a bounded number of
// Redis round-trips per call; every multi-step store mutation runs as one
// Lua script so concurrent callers cannot observe partial state.
package tokenward
