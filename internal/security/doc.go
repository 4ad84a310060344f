// Package security derives a read-only posture report from the engine's
// effective configuration: which protections are active, their budgets, and
// their failure modes.
//
// # What this package must NOT do
//
//   - Inspect live counters or stored credentials — it reads config only.
package security
