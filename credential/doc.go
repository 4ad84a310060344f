// Package credential implements the Redis-backed rotation store for renewal
// credentials: issue, atomic rotate with reuse detection, and family- and
// subject-scoped revocation.
//
// # Data layout
//
// One Redis hash per credential plus two set indexes:
//   - <prefix>:c:<tenant>:<id> — credential fields (digest, family, lineage, revocation)
//   - <prefix>:f:<tenant>:<family> — member credential IDs of one rotation family
//   - <prefix>:s:<tenant>:<subject> — family IDs belonging to one subject
//
// Superseded credentials stay stored (revoked, with lineage) until their TTL
// runs out; that retained state is what makes replay of an old credential
// detectable.
//
// # Rotation protocol
//
// [Store.Rotate] runs a single Lua compare-and-swap: verify the presented
// digest, revoke the parent, write the child. Presenting an already-revoked
// credential revokes the entire family inside the same script and surfaces
// [ErrReuseDetected].
//
// # What this package must NOT do
//
//   - See raw secrets. Callers hash before calling in; only SHA-256 digests
//     are stored or compared.
//   - Decide authentication outcomes — the Engine maps store errors to
//     user-facing results.
package credential
