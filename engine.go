package tokenward

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/tokenward/tokenward/captcha"
	"github.com/tokenward/tokenward/credential"
	"github.com/tokenward/tokenward/internal"
	"github.com/tokenward/tokenward/internal/audit"
	"github.com/tokenward/tokenward/internal/limiters"
	"github.com/tokenward/tokenward/internal/rate"
	"github.com/tokenward/tokenward/jwt"
)

// Engine defines a public type used by tokenward APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config      Config
	credentials *credential.Store
	rateLimiter *rate.Limiter
	login       *limiters.LoginLimiter
	policies    *limiters.PolicySet
	audit       *audit.Dispatcher
	security    *audit.Dispatcher
	metrics     *Metrics
	jwtManager  *jwt.Manager
	subjects    SubjectProvider
	captcha     captcha.Verifier
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
	if e.security != nil {
		e.security.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped may return an error when input validation, dependency calls, or security checks fail.
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	var dropped uint64
	if e.audit != nil {
		dropped += e.audit.Dropped()
	}
	if e.security != nil {
		dropped += e.security.Dropped()
	}
	return dropped
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot may return an error when input validation, dependency calls, or security checks fail.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// loginKey scopes the lockout and failure counters to the source IP and
// identifier pair, so an attacker spraying one account does not lock out the
// legitimate owner on another network.
func (e *Engine) loginKey(ctx context.Context, identifier string) string {
	return tenantIDFromContext(ctx) + ":" + clientIPFromContext(ctx) + ":" + identifier
}

// Login authenticates an identifier/secret pair under lockout and captcha
// protection and, on success, issues a renewal credential family plus a
// signed access token.
//
// Order matters: the lockout check runs before any credential work so a
// locked account costs no provider call; the failure counters are reset only
// after a fully verified success.
func (e *Engine) Login(ctx context.Context, identifier, secret string) (*LoginResult, error) {
	if e == nil || e.subjects == nil || e.credentials == nil {
		return nil, ErrEngineNotReady
	}
	if identifier == "" || secret == "" {
		return nil, e.recordLoginFailure(ctx, identifier, "", "empty_input")
	}

	key := e.loginKey(ctx, identifier)

	blockedFor, degraded, err := e.login.CheckLocked(ctx, key)
	if err != nil {
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", "", ErrStoreUnavailable, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     "limiter_unavailable",
			}
		})
		return nil, ErrStoreUnavailable
	}
	if blockedFor > 0 {
		e.metricInc(MetricLoginLocked)
		e.metricInc(MetricBruteForceDetected)
		e.emitSecurity(ctx, securityEventBruteForce, "", "", e.config.Login.MaxAttempts)
		e.emitAudit(ctx, auditEventLoginLocked, false, "", "", "", ErrAccountLocked, func() map[string]string {
			return map[string]string{
				"identifier":  identifier,
				"retry_after": blockedFor.String(),
			}
		})
		return nil, &LockedError{RetryAfter: blockedFor}
	}

	captchaNeeded := false
	if e.config.Captcha.Enabled {
		captchaNeeded, err = e.login.CaptchaRequired(ctx, key)
		if err != nil {
			return nil, ErrStoreUnavailable
		}
	}

	subject, err := e.subjects.VerifySubject(ctx, identifier, secret)
	if err != nil || subject == nil || subject.SubjectID == "" {
		return nil, e.recordLoginFailure(ctx, identifier, key, "provider_rejected")
	}

	tenantID := subject.TenantID
	if tenantID == "" {
		tenantID = tenantIDFromContext(ctx)
	}

	if captchaNeeded {
		if err := e.verifyCaptcha(ctx, subject.SubjectID, tenantID, identifier); err != nil {
			return nil, err
		}
	}

	// Counters only reset after a fully verified success, so an attacker
	// cannot clear a lockout by solving a captcha alone.
	if err := e.login.Reset(ctx, key); err != nil {
		log.Print("tokenward: login counter reset failed")
	}

	result, err := e.issueFamily(ctx, subject.SubjectID, tenantID)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, subject.SubjectID, tenantID, "", err, nil)
		return nil, err
	}
	result.Degraded = degraded

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, subject.SubjectID, tenantID, result.FamilyID, nil, func() map[string]string {
		m := map[string]string{
			"identifier": identifier,
		}
		if degraded {
			m["limiter_degraded"] = "true"
		}
		return m
	})

	return result, nil
}

// recordLoginFailure spends one lockout point, reports lockout transitions,
// and always surfaces the generic invalid-credentials error to the caller.
func (e *Engine) recordLoginFailure(ctx context.Context, identifier, key, reason string) error {
	e.metricInc(MetricLoginFailure)

	var outcome limiters.FailureOutcome
	if key != "" {
		var err error
		outcome, err = e.login.RecordFailure(ctx, key)
		if err != nil {
			outcome.Degraded = true
		}
	}

	if outcome.Locked {
		e.metricInc(MetricLoginLocked)
		e.metricInc(MetricBruteForceDetected)
		e.emitSecurity(ctx, securityEventBruteForce, "", "", outcome.Attempts)
		e.emitAudit(ctx, auditEventLoginLocked, false, "", "", "", ErrAccountLocked, func() map[string]string {
			return map[string]string{
				"identifier":  identifier,
				"attempts":    strconv.FormatInt(outcome.Attempts, 10),
				"retry_after": outcome.RetryAfter.String(),
			}
		})
		return &LockedError{RetryAfter: outcome.RetryAfter}
	}

	e.emitAudit(ctx, auditEventLoginFailure, false, "", "", "", ErrInvalidCredentials, func() map[string]string {
		m := map[string]string{
			"identifier": identifier,
			"reason":     reason,
		}
		if outcome.Attempts > 0 {
			m["attempts"] = strconv.FormatInt(outcome.Attempts, 10)
		}
		if outcome.CaptchaRequired {
			m["captcha_required"] = "true"
		}
		if outcome.Degraded {
			m["limiter_degraded"] = "true"
		}
		return m
	})
	return ErrInvalidCredentials
}

func (e *Engine) verifyCaptcha(ctx context.Context, subjectID, tenantID, identifier string) error {
	token := captchaTokenFromContext(ctx)
	if token == "" || e.captcha == nil {
		e.metricInc(MetricCaptchaRequired)
		e.emitAudit(ctx, auditEventCaptchaRequired, false, subjectID, tenantID, "", ErrCaptchaRequired, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
			}
		})
		return ErrCaptchaRequired
	}

	ok, err := e.captcha.Verify(ctx, token, clientIPFromContext(ctx))
	if err != nil {
		e.metricInc(MetricCaptchaFailure)
		e.emitAudit(ctx, auditEventCaptchaFailure, false, subjectID, tenantID, "", ErrCaptchaInvalid, nil)
		return ErrCaptchaInvalid
	}
	if !ok {
		e.metricInc(MetricCaptchaRequired)
		e.emitAudit(ctx, auditEventCaptchaRequired, false, subjectID, tenantID, "", ErrCaptchaRequired, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     "token_rejected",
			}
		})
		return ErrCaptchaRequired
	}
	return nil
}

// issueFamily mints the root credential of a new rotation family together
// with its access token. The raw secret exists only in the returned token.
func (e *Engine) issueFamily(ctx context.Context, subjectID, tenantID string) (*LoginResult, error) {
	cid, err := internal.NewCredentialID()
	if err != nil {
		return nil, err
	}
	rawSecret, err := internal.NewCredentialSecret()
	if err != nil {
		return nil, err
	}

	familyID := uuid.NewString()
	cred := &credential.Credential{
		ID:        cid.String(),
		SubjectID: subjectID,
		TenantID:  tenantID,
		FamilyID:  familyID,
		Digest:    internal.HashCredentialSecret(rawSecret),
		SourceIP:  clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
	}

	if err := e.credentials.Issue(ctx, cred); err != nil {
		return nil, mapStoreError(err)
	}
	e.metricInc(MetricCredentialIssued)

	renewal, err := internal.EncodeCredentialToken(cred.ID, rawSecret)
	if err != nil {
		return nil, err
	}

	access, err := e.jwtManager.CreateAccess(subjectID, tenantID, familyID)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		SubjectID:    subjectID,
		TenantID:     tenantID,
		FamilyID:     familyID,
		AccessToken:  access,
		RenewalToken: renewal,
	}, nil
}

// Refresh rotates a renewal credential. The presented token is consumed
// whether or not rotation succeeds; replay of a consumed token revokes the
// whole family before this method returns [ErrReuseDetected].
func (e *Engine) Refresh(ctx context.Context, rawToken string) (*RefreshResult, error) {
	if e == nil || e.credentials == nil {
		return nil, ErrEngineNotReady
	}

	credentialID, rawSecret, err := internal.DecodeCredentialToken(rawToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", "", ErrCredentialInvalid, func() map[string]string {
			return map[string]string{
				"reason": "malformed_token",
			}
		})
		return nil, ErrCredentialInvalid
	}

	childID, err := internal.NewCredentialID()
	if err != nil {
		return nil, err
	}
	childSecret, err := internal.NewCredentialSecret()
	if err != nil {
		return nil, err
	}

	tenantID := tenantIDFromContext(ctx)
	res, err := e.credentials.Rotate(
		ctx,
		tenantID,
		credentialID,
		internal.HashCredentialSecret(rawSecret),
		childID.String(),
		internal.HashCredentialSecret(childSecret),
		credential.Meta{
			SourceIP:  clientIPFromContext(ctx),
			UserAgent: userAgentFromContext(ctx),
		},
	)
	if err != nil {
		return nil, e.mapRotateError(ctx, res, err)
	}

	e.metricInc(MetricRefreshSuccess)
	e.metricInc(MetricCredentialIssued)

	renewal, err := internal.EncodeCredentialToken(res.Child.ID, childSecret)
	if err != nil {
		return nil, err
	}
	access, err := e.jwtManager.CreateAccess(res.SubjectID, res.Child.TenantID, res.FamilyID)
	if err != nil {
		return nil, err
	}

	e.emitAudit(ctx, auditEventRefreshSuccess, true, res.SubjectID, res.Child.TenantID, res.FamilyID, nil, nil)

	return &RefreshResult{
		SubjectID:    res.SubjectID,
		TenantID:     res.Child.TenantID,
		FamilyID:     res.FamilyID,
		AccessToken:  access,
		RenewalToken: renewal,
		ExpiresAt:    time.Unix(res.Child.ExpiresAt, 0),
	}, nil
}

func (e *Engine) mapRotateError(ctx context.Context, res *credential.RotateResult, err error) error {
	switch {
	case errors.Is(err, credential.ErrReuseDetected):
		var subjectID, familyID string
		var revoked int64
		if res != nil {
			subjectID, familyID, revoked = res.SubjectID, res.FamilyID, res.RevokedCount
		}
		e.metricInc(MetricReuseDetected)
		e.metricInc(MetricRefreshFailure)
		e.emitSecurity(ctx, securityEventReuseDetected, subjectID, familyID, revoked)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, subjectID, "", familyID, ErrReuseDetected, func() map[string]string {
			return map[string]string{
				"revoked_count": strconv.FormatInt(revoked, 10),
			}
		})
		return ErrReuseDetected

	case errors.Is(err, credential.ErrCredentialNotFound),
		errors.Is(err, credential.ErrCredentialExpired):
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", "", ErrCredentialExpired, nil)
		return ErrCredentialExpired

	case errors.Is(err, credential.ErrDigestMismatch):
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", "", ErrCredentialInvalid, func() map[string]string {
			return map[string]string{
				"reason": "digest_mismatch",
			}
		})
		return ErrCredentialInvalid

	default:
		e.metricInc(MetricRefreshFailure)
		return mapStoreError(err)
	}
}

// Logout revokes one rotation family.
func (e *Engine) Logout(ctx context.Context, familyID string) error {
	count, err := e.revokeFamily(ctx, familyID, credential.ReasonLogout)
	if err != nil {
		return err
	}
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutFamily, true, "", "", familyID, nil, func() map[string]string {
		return map[string]string{
			"revoked_count": strconv.FormatInt(count, 10),
		}
	})
	return nil
}

// LogoutAll revokes every family the subject holds.
func (e *Engine) LogoutAll(ctx context.Context, subjectID string) error {
	count, err := e.revokeSubject(ctx, subjectID, credential.ReasonLogoutAll)
	if err != nil {
		return err
	}
	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, subjectID, "", "", nil, func() map[string]string {
		return map[string]string{
			"revoked_count": strconv.FormatInt(count, 10),
		}
	})
	return nil
}

// RevokeFamily revokes one family with an explicit reason, for operator
// tooling and incident response. Idempotent.
func (e *Engine) RevokeFamily(ctx context.Context, familyID string, reason credential.Reason) (int64, error) {
	count, err := e.revokeFamily(ctx, familyID, reason)
	if err != nil {
		return 0, err
	}
	e.emitAudit(ctx, auditEventFamilyRevoked, true, "", "", familyID, nil, func() map[string]string {
		return map[string]string{
			"reason":        string(reason),
			"revoked_count": strconv.FormatInt(count, 10),
		}
	})
	return count, nil
}

// RevokeAllForSubject revokes every credential of a subject, e.g. with
// reason credential_change after a password change or admin_revoke for
// operator action.
func (e *Engine) RevokeAllForSubject(ctx context.Context, subjectID string, reason credential.Reason) (int64, error) {
	count, err := e.revokeSubject(ctx, subjectID, reason)
	if err != nil {
		return 0, err
	}
	e.emitAudit(ctx, auditEventSubjectRevoked, true, subjectID, "", "", nil, func() map[string]string {
		return map[string]string{
			"reason":        string(reason),
			"revoked_count": strconv.FormatInt(count, 10),
		}
	})
	return count, nil
}

func (e *Engine) revokeFamily(ctx context.Context, familyID string, reason credential.Reason) (int64, error) {
	if e == nil || e.credentials == nil {
		return 0, ErrEngineNotReady
	}
	count, err := e.credentials.RevokeFamily(ctx, tenantIDFromContext(ctx), familyID, reason)
	if err != nil {
		return 0, mapStoreError(err)
	}
	if count > 0 {
		e.metricInc(MetricCredentialRevoked)
	}
	return count, nil
}

func (e *Engine) revokeSubject(ctx context.Context, subjectID string, reason credential.Reason) (int64, error) {
	if e == nil || e.credentials == nil {
		return 0, ErrEngineNotReady
	}
	count, err := e.credentials.RevokeAll(ctx, tenantIDFromContext(ctx), subjectID, reason)
	if err != nil {
		return 0, mapStoreError(err)
	}
	if count > 0 {
		e.metricInc(MetricCredentialRevoked)
	}
	return count, nil
}

// ValidateAccess parses and verifies a signed access token.
func (e *Engine) ValidateAccess(ctx context.Context, tokenStr string) (*AccessIdentity, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	claims, err := e.jwtManager.ParseAccess(tokenStr)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricValidateLatency, time.Since(start))
	}
	if err != nil {
		return nil, ErrTokenInvalid
	}

	return &AccessIdentity{
		SubjectID: claims.SubjectID,
		TenantID:  claims.TenantID,
		FamilyID:  claims.FamilyID,
	}, nil
}

// ConsumeQuota spends one point of the named policy for key. A denied
// consumption returns a [RateLimitError] carrying the retry hint.
func (e *Engine) ConsumeQuota(ctx context.Context, policy, key string) (RateResult, error) {
	if e == nil || e.policies == nil {
		return RateResult{}, ErrEngineNotReady
	}

	res, err := e.policies.Consume(ctx, policy, key)
	if err != nil {
		if errors.Is(err, limiters.ErrUnknownPolicy) {
			return RateResult{}, ErrUnknownPolicy
		}
		return RateResult{}, mapStoreError(err)
	}
	if res.Degraded {
		e.metricInc(MetricRateLimitDegraded)
	}
	if !res.Allowed {
		e.emitRateLimit(ctx, policy, "", func() map[string]string {
			return map[string]string{
				"key": key,
			}
		})
		return res, &RateLimitError{Policy: policy, RetryAfter: res.RetryAfter}
	}
	return res, nil
}

// PeekQuota reports the counter state without consuming.
func (e *Engine) PeekQuota(ctx context.Context, policy, key string) (RateStatus, error) {
	if e == nil || e.policies == nil {
		return RateStatus{}, ErrEngineNotReady
	}

	st, err := e.policies.Peek(ctx, policy, key)
	if err != nil {
		if errors.Is(err, limiters.ErrUnknownPolicy) {
			return RateStatus{}, ErrUnknownPolicy
		}
		return RateStatus{}, mapStoreError(err)
	}
	return st, nil
}

// ResetQuota clears the counter and block state for key under the policy.
func (e *Engine) ResetQuota(ctx context.Context, policy, key string) error {
	if e == nil || e.policies == nil {
		return ErrEngineNotReady
	}

	if err := e.policies.Reset(ctx, policy, key); err != nil {
		if errors.Is(err, limiters.ErrUnknownPolicy) {
			return ErrUnknownPolicy
		}
		return mapStoreError(err)
	}
	return nil
}

// QuotaPolicy returns the named policy declaration so HTTP surfaces can
// render limit headers.
func (e *Engine) QuotaPolicy(policy string) (RatePolicy, error) {
	if e == nil || e.policies == nil {
		return RatePolicy{}, ErrEngineNotReady
	}
	p, err := e.policies.Policy(policy)
	if err != nil {
		return RatePolicy{}, ErrUnknownPolicy
	}
	return p, nil
}

// GetCredential looks up a stored credential record by ID for introspection
// and operator tooling. The record carries only the digest, never a secret.
func (e *Engine) GetCredential(ctx context.Context, credentialID string) (*CredentialInfo, error) {
	if e == nil || e.credentials == nil {
		return nil, ErrEngineNotReady
	}
	cred, err := e.credentials.Get(ctx, tenantIDFromContext(ctx), credentialID)
	if err != nil {
		if errors.Is(err, credential.ErrCredentialNotFound) {
			return nil, ErrCredentialExpired
		}
		return nil, mapStoreError(err)
	}
	return cred, nil
}

// GetCredentialFromToken resolves an opaque renewal token to its stored
// credential record. The presented secret must match the stored digest, so
// callers can safely use the result for self-service operations such as
// logout without proving possession any other way.
func (e *Engine) GetCredentialFromToken(ctx context.Context, rawToken string) (*CredentialInfo, error) {
	if e == nil || e.credentials == nil {
		return nil, ErrEngineNotReady
	}
	credentialID, secret, err := internal.DecodeCredentialToken(rawToken)
	if err != nil {
		return nil, ErrCredentialInvalid
	}
	cred, err := e.credentials.Get(ctx, tenantIDFromContext(ctx), credentialID)
	if err != nil {
		if errors.Is(err, credential.ErrCredentialNotFound) {
			return nil, ErrCredentialExpired
		}
		return nil, mapStoreError(err)
	}
	if cred.Digest != internal.HashCredentialSecret(secret) {
		return nil, ErrCredentialInvalid
	}
	return cred, nil
}

func mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, credential.ErrRedisUnavailable) || errors.Is(err, rate.ErrRedisUnavailable) {
		return ErrStoreUnavailable
	}
	return err
}
