// Package limiters provides domain-specific abuse limiters built on top of
// the internal/rate primitives.
//
// # Limiters
//
//   - [LoginLimiter] — per-subject lockout plus a track-only failure counter
//     that drives captcha escalation.
//   - [PolicySet] — registry of named quota policies (per-IP, per-user,
//     per-session) consumed by name.
//
// All limiters are nil-safe: calling any method on a nil receiver is a no-op.
//
// # Architecture boundaries
//
// Policy thresholds come from Config structs supplied at construction time.
//
// # What this package must NOT do
//
//   - Import tokenward or any sibling internal package except internal/rate.
//   - Make policy decisions beyond counting — the Engine decides consequences.
package limiters
