package tokenward

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess       = "login_success"
	auditEventLoginFailure       = "login_failure"
	auditEventLoginLocked        = "login_locked"
	auditEventCaptchaRequired    = "captcha_required"
	auditEventCaptchaFailure     = "captcha_failure"
	auditEventRefreshSuccess     = "refresh_success"
	auditEventRefreshInvalid     = "refresh_invalid"
	auditEventLogoutFamily       = "logout_family"
	auditEventLogoutAll          = "logout_all"
	auditEventFamilyRevoked      = "family_revoked"
	auditEventSubjectRevoked     = "subject_revoked"
	auditEventRateLimitTriggered = "rate_limit_triggered"

	securityEventBruteForce    = "brute_force"
	securityEventReuseDetected = "reuse_detected"
)

// AuditErrorCode defines a public type used by tokenward APIs.
//
// AuditErrorCode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrCaptchaRequired    AuditErrorCode = "captcha_required"
	auditErrCaptchaInvalid     AuditErrorCode = "captcha_invalid"
	auditErrCredentialReuse    AuditErrorCode = "credential_reuse"
	auditErrCredentialExpired  AuditErrorCode = "credential_expired"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrNotConfigured      AuditErrorCode = "not_configured"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	kind string,
	success bool,
	subjectID string,
	tenantID string,
	familyID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}
	if tenantID == "" {
		tenantID = tenantIDFromContext(ctx)
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		Kind:      kind,
		SubjectID: subjectID,
		TenantID:  tenantID,
		FamilyID:  familyID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

// emitSecurity publishes a brute_force or reuse_detected event to the
// dedicated security sink. Fire-and-forget: a full buffer drops the event
// and bumps the drop counter, it never blocks the caller.
func (e *Engine) emitSecurity(ctx context.Context, kind, subjectID, familyID string, count int64) {
	if e == nil || e.security == nil {
		return
	}

	e.security.Emit(ctx, AuditEvent{
		Timestamp: time.Now().UTC(),
		Kind:      kind,
		SubjectID: subjectID,
		TenantID:  tenantIDFromContext(ctx),
		FamilyID:  familyID,
		IP:        clientIPFromContext(ctx),
		Count:     count,
	})
}

func (e *Engine) emitRateLimit(
	ctx context.Context,
	scope string,
	tenantID string,
	metadataBuilder func() map[string]string,
) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", tenantID, "", nil, func() map[string]string {
		base := map[string]string{
			"scope": scope,
		}
		if metadataBuilder == nil {
			return base
		}
		for k, v := range metadataBuilder() {
			base[k] = v
		}
		return base
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrCaptchaRequired):
		return auditErrCaptchaRequired
	case errors.Is(err, ErrCaptchaInvalid):
		return auditErrCaptchaInvalid
	case errors.Is(err, ErrReuseDetected):
		return auditErrCredentialReuse
	case errors.Is(err, ErrCredentialExpired):
		return auditErrCredentialExpired
	case errors.Is(err, ErrCredentialInvalid),
		errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrNotConfigured),
		errors.Is(err, ErrUnknownPolicy):
		return auditErrNotConfigured
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
