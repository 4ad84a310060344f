package tokenward

import (
	"time"

	"github.com/tokenward/tokenward/internal/security"
)

// SecurityReport is a read-only snapshot of the engine's effective
// protection posture, derived entirely from configuration.
type SecurityReport = security.Report

// SecurityReport describes the securityreport operation and its observable behavior.
//
// SecurityReport may return an error when input validation, dependency calls, or security checks fail.
// SecurityReport does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	algorithm := e.config.JWT.SigningMethod
	if algorithm == "" {
		algorithm = "ed25519"
	}

	blocks := make([]time.Duration, 0, len(e.config.Policies))
	for _, p := range e.config.Policies {
		blocks = append(blocks, p.Block)
	}

	return security.BuildReport(security.ReportInput{
		SigningAlgorithm:        algorithm,
		AccessTTL:               e.config.JWT.AccessTTL,
		CredentialTTL:           e.config.Credential.TTL,
		LockoutEnabled:          e.config.Login.Enabled,
		MaxLoginAttempts:        e.config.Login.MaxAttempts,
		LockDuration:            e.config.Login.LockDuration,
		LockoutFailOpen:         e.config.Login.FailOpen,
		CaptchaEnabled:          e.config.Captcha.Enabled,
		CaptchaThreshold:        e.config.Login.CaptchaThreshold,
		PolicyBlocks:            blocks,
		AuditEnabled:            e.config.Audit.Enabled,
		SecuritySinkAttached:    e.security != nil,
		MetricsEnabled:          e.config.Metrics.Enabled,
		LatencyHistogramsActive: e.config.Metrics.EnableLatencyHistograms,
	})
}
