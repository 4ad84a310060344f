// Package internal contains helper utilities that are intentionally private to
// tokenward, including secure random generation and credential token encoding.
//
// # Sub-packages
//
//   - audit — async security event dispatch (Dispatcher + Sink implementations)
//   - limiters — domain-specific abuse limiters built on the core windowed limiter
//   - rate — core Redis-backed windowed limiter primitives
//   - security — posture report tooling
//
// # What this package must NOT do
//
//   - Export types that appear in the public tokenward API.
//   - Be imported by any package outside the tokenward module.
package internal
