// Package rate provides the generic Redis-backed windowed limiter that
// abuse policies are built on.
//
// # Window semantics
//
// Fixed windows with rolling reset: INCR + conditional PEXPIRE on the first
// hit, so the window starts at the first consume and resets when the key
// expires. Exhausting a policy that carries a block duration flips the key
// into a blocked state and discards the counter. Key prefixes:
//   - arw: — window counter, per policy per key
//   - arb: — block marker, per policy per key
//
// # What this package must NOT do
//
//   - Define concrete policies (those live in the engine configuration and
//     internal/limiters).
//   - Be imported outside the tokenward module.
package rate
