// Package middleware exposes HTTP adapters for bearer-token authorization
// and per-policy request throttling built on top of tokenward.Engine.
//
// # Handlers
//
//   - [Guard] — validates the Authorization bearer token and injects the
//     identity into the request context.
//   - [RateLimit] — spends one point of a named policy per request and
//     renders 429 with Retry-After and X-RateLimit-* headers when denied.
//   - [WriteLoginError] — maps engine login errors to HTTP status codes.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement throttling or authentication logic itself — all decisions are
// delegated to the Engine.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access Redis (Engine handles I/O).
//   - Invent error codes beyond the exported Code* set.
package middleware
