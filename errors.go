package tokenward

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotConfigured is an exported constant or variable used by the authentication engine.
	ErrNotConfigured = errors.New("feature not configured")
	// ErrEngineNotReady is an exported constant or variable used by the authentication engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrInvalidCredentials is an exported constant or variable used by the authentication engine.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrRateLimited is an exported constant or variable used by the authentication engine.
	ErrRateLimited = errors.New("rate limited")
	// ErrAccountLocked is an exported constant or variable used by the authentication engine.
	ErrAccountLocked = errors.New("account locked")
	// ErrCaptchaRequired is an exported constant or variable used by the authentication engine.
	ErrCaptchaRequired = errors.New("captcha required")
	// ErrCaptchaInvalid is an exported constant or variable used by the authentication engine.
	ErrCaptchaInvalid = errors.New("captcha verification failed")
	// ErrCredentialInvalid is an exported constant or variable used by the authentication engine.
	ErrCredentialInvalid = errors.New("invalid renewal credential")
	// ErrCredentialExpired is an exported constant or variable used by the authentication engine.
	ErrCredentialExpired = errors.New("renewal credential expired or unknown")
	// ErrReuseDetected is an exported constant or variable used by the authentication engine.
	ErrReuseDetected = errors.New("renewal credential reuse detected")
	// ErrTokenInvalid is an exported constant or variable used by the authentication engine.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrStoreUnavailable is an exported constant or variable used by the authentication engine.
	ErrStoreUnavailable = errors.New("backing store unavailable")
	// ErrUnknownPolicy is an exported constant or variable used by the authentication engine.
	ErrUnknownPolicy = errors.New("unknown rate limit policy")
)

// LockedError reports a login lockout together with the remaining block
// duration. It unwraps to [ErrAccountLocked] so callers can keep using
// errors.Is.
type LockedError struct {
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked, retry after %s", e.RetryAfter)
}

// Unwrap describes the unwrap operation and its observable behavior.
//
// Unwrap may return an error when input validation, dependency calls, or security checks fail.
// Unwrap does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *LockedError) Unwrap() error {
	return ErrAccountLocked
}

// RateLimitError reports a denied quota consumption together with the
// remaining block duration and the policy that tripped. It unwraps to
// [ErrRateLimited].
type RateLimitError struct {
	Policy     string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("policy %s rate limited, retry after %s", e.Policy, e.RetryAfter)
}

// Unwrap describes the unwrap operation and its observable behavior.
//
// Unwrap may return an error when input validation, dependency calls, or security checks fail.
// Unwrap does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}
