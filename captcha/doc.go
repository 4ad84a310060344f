// Package captcha abstracts solved-captcha verification behind a boolean
// oracle so the engine never carries provider-specific protocol details.
//
// # Implementations
//
//   - [AllowAll] — accepts every token (development, tests).
//   - [DenyAll]  — rejects every token (lockdown).
//   - [HTTPVerifier] — posts the token to a hosted provider endpoint and
//     reads a JSON {"success": bool} verdict.
//
// # What this package must NOT do
//
//   - Decide WHEN a captcha is required (the engine's failure tracker does).
//   - Retry or cache verdicts.
package captcha
