package limiters

import (
	"context"
	"time"

	"github.com/tokenward/tokenward/internal/rate"
)

// LoginConfig holds the two policies behind login protection. Attempt is the
// blocking lockout budget; Failure is a track-only counter whose value drives
// captcha escalation once it reaches CaptchaThreshold.
type LoginConfig struct {
	Enabled          bool
	Attempt          rate.Policy
	Failure          rate.Policy
	CaptchaThreshold int64
}

// FailureOutcome is the combined result of recording one failed login.
type FailureOutcome struct {
	Locked          bool
	RetryAfter      time.Duration
	Attempts        int64
	Failures        int64
	CaptchaRequired bool
	Degraded        bool
}

// LoginLimiter tracks failed logins per subject and decides lockout and
// captcha escalation.
type LoginLimiter struct {
	limiter *rate.Limiter
	config  LoginConfig
}

// NewLoginLimiter creates a login limiter. Returns nil when disabled; a nil
// limiter is valid and never locks.
func NewLoginLimiter(limiter *rate.Limiter, cfg LoginConfig) *LoginLimiter {
	if !cfg.Enabled {
		return nil
	}
	return &LoginLimiter{limiter: limiter, config: cfg}
}

// RecordFailure spends one lockout point and bumps the failure counter for
// the subject. The lockout consume that exhausts the budget reports Locked
// with the remaining block duration.
func (l *LoginLimiter) RecordFailure(ctx context.Context, subject string) (FailureOutcome, error) {
	if l == nil || subject == "" {
		return FailureOutcome{}, nil
	}

	var out FailureOutcome

	res, err := l.limiter.Consume(ctx, l.config.Attempt, subject)
	if err != nil {
		return out, err
	}
	out.Attempts = res.Consumed
	out.Degraded = res.Degraded
	if !res.Allowed {
		out.Locked = true
		out.RetryAfter = res.RetryAfter
	}

	fres, err := l.limiter.Consume(ctx, l.config.Failure, subject)
	if err != nil {
		return out, err
	}
	out.Failures = fres.Consumed
	out.Degraded = out.Degraded || fres.Degraded
	out.CaptchaRequired = l.config.CaptchaThreshold > 0 && fres.Consumed >= l.config.CaptchaThreshold

	return out, nil
}

// CheckLocked reports the remaining lockout for a subject before any
// credential work happens. When the backend is down and the lockout policy
// is fail-open, the subject is treated as unlocked and degraded is set.
func (l *LoginLimiter) CheckLocked(ctx context.Context, subject string) (blockedFor time.Duration, degraded bool, err error) {
	if l == nil || subject == "" {
		return 0, false, nil
	}

	st, err := l.limiter.Peek(ctx, l.config.Attempt, subject)
	if err != nil {
		if l.config.Attempt.FailMode == rate.FailOpen {
			return 0, true, nil
		}
		return 0, false, err
	}
	return st.BlockedFor, false, nil
}

// CaptchaRequired reports whether the failure counter has crossed the
// captcha threshold.
func (l *LoginLimiter) CaptchaRequired(ctx context.Context, subject string) (bool, error) {
	if l == nil || subject == "" || l.config.CaptchaThreshold <= 0 {
		return false, nil
	}

	st, err := l.limiter.Peek(ctx, l.config.Failure, subject)
	if err != nil {
		if l.config.Failure.FailMode == rate.FailOpen {
			return false, nil
		}
		return false, err
	}
	return st.Consumed >= l.config.CaptchaThreshold, nil
}

// Reset clears both counters for a subject. Called after a successful,
// fully verified login or an operator unlock.
func (l *LoginLimiter) Reset(ctx context.Context, subject string) error {
	if l == nil || subject == "" {
		return nil
	}

	if err := l.limiter.Reset(ctx, l.config.Attempt, subject); err != nil {
		return err
	}
	return l.limiter.Reset(ctx, l.config.Failure, subject)
}
