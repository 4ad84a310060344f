// Package mongo provides a durable MongoDB sink for tokenward audit and
// security events.
//
// [NewSink] installs a compound (kind, timestamp) index for event queries
// and an optional TTL index so the trail ages out server-side. Inserts are
// best-effort; the engine's dispatcher already absorbs backpressure.
//
// # What this package must NOT do
//
//   - Block the dispatcher beyond the insert timeout.
//   - Surface storage errors into engine flows.
package mongo
