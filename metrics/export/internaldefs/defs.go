package internaldefs

import (
	tokenward "github.com/tokenward/tokenward"
)

// CounterDef defines a public type used by tokenward APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   tokenward.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by tokenward APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   tokenward.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the authentication engine.
var CounterDefs = []CounterDef{
	{ID: tokenward.MetricLoginSuccess, Name: "tokenward_login_success_total", Help: "Successful login attempts."},
	{ID: tokenward.MetricLoginFailure, Name: "tokenward_login_failure_total", Help: "Failed login attempts."},
	{ID: tokenward.MetricLoginLocked, Name: "tokenward_login_locked_total", Help: "Login attempts rejected by lockout."},
	{ID: tokenward.MetricCaptchaRequired, Name: "tokenward_captcha_required_total", Help: "Logins held for an unsatisfied captcha."},
	{ID: tokenward.MetricCaptchaFailure, Name: "tokenward_captcha_failure_total", Help: "Captcha verifier failures."},
	{ID: tokenward.MetricBruteForceDetected, Name: "tokenward_brute_force_detected_total", Help: "Brute-force lockout transitions."},
	{ID: tokenward.MetricRefreshSuccess, Name: "tokenward_refresh_success_total", Help: "Successful credential rotations."},
	{ID: tokenward.MetricRefreshFailure, Name: "tokenward_refresh_failure_total", Help: "Failed credential rotations."},
	{ID: tokenward.MetricReuseDetected, Name: "tokenward_reuse_detected_total", Help: "Detected renewal credential reuses."},
	{ID: tokenward.MetricCredentialIssued, Name: "tokenward_credential_issued_total", Help: "Issued renewal credentials."},
	{ID: tokenward.MetricCredentialRevoked, Name: "tokenward_credential_revoked_total", Help: "Revocation operations that removed live credentials."},
	{ID: tokenward.MetricRateLimitHit, Name: "tokenward_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
	{ID: tokenward.MetricRateLimitDegraded, Name: "tokenward_rate_limit_degraded_total", Help: "Fail-open limiter decisions taken with the store down."},
	{ID: tokenward.MetricLogout, Name: "tokenward_logout_total", Help: "Single-family logout operations."},
	{ID: tokenward.MetricLogoutAll, Name: "tokenward_logout_all_total", Help: "Logout-all operations."},
}

// HistogramDefs is an exported constant or variable used by the authentication engine.
var HistogramDefs = []HistogramDef{
	{ID: tokenward.MetricValidateLatency, Name: "tokenward_validate_latency_seconds", Help: "ValidateAccess latency histogram."},
}

// HistogramBounds is an exported constant or variable used by the authentication engine.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is an exported constant or variable used by the authentication engine.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets describes the normalizebuckets operation and its observable behavior.
//
// NormalizeBuckets may return an error when input validation, dependency calls, or security checks fail.
// NormalizeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets describes the cumulativebuckets operation and its observable behavior.
//
// CumulativeBuckets may return an error when input validation, dependency calls, or security checks fail.
// CumulativeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
