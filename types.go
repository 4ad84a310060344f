package tokenward

import (
	"context"
	"time"

	"github.com/tokenward/tokenward/credential"
	"github.com/tokenward/tokenward/internal/rate"
)

// RatePolicy describes one named abuse policy. It aliases the internal
// limiter policy so callers can declare custom policies in [Config].
type RatePolicy = rate.Policy

// RateResult is the outcome of a quota consumption.
type RateResult = rate.Result

// RateStatus is the non-consuming view of a quota counter.
type RateStatus = rate.Status

// FailMode aliases for policy declarations.
const (
	// FailOpen is an exported constant or variable used by the authentication engine.
	FailOpen = rate.FailOpen
	// FailClosed is an exported constant or variable used by the authentication engine.
	FailClosed = rate.FailClosed
)

// Subject is the account identity resolved by a [SubjectProvider]. The
// Engine never sees stored secrets, only the verification verdict.
type Subject struct {
	SubjectID string
	TenantID  string
}

// SubjectProvider verifies a submitted identifier/secret pair against the
// caller’s account store. Return [ErrInvalidCredentials] (or any error)
// when the pair does not match; the Engine reports every provider failure
// as a generic invalid-credentials outcome.
type SubjectProvider interface {
	VerifySubject(ctx context.Context, identifier, secret string) (*Subject, error)
}

// LoginResult is returned by [Engine.Login] on success.
//
//	AccessToken   — short-lived signed JWT.
//	RenewalToken  — opaque single-use rotation credential.
type LoginResult struct {
	SubjectID    string
	TenantID     string
	FamilyID     string
	AccessToken  string
	RenewalToken string

	// Degraded reports that a fail-open limiter skipped enforcement
	// because the counter store was unreachable.
	Degraded bool
}

// RefreshResult is returned by [Engine.Refresh] on a successful rotation.
type RefreshResult struct {
	SubjectID    string
	TenantID     string
	FamilyID     string
	AccessToken  string
	RenewalToken string
	ExpiresAt    time.Time
}

// AccessIdentity is the validated claim set returned by
// [Engine.ValidateAccess].
type AccessIdentity struct {
	SubjectID string
	TenantID  string
	FamilyID  string
}

// CredentialInfo re-exports the stored credential record for introspection
// surfaces.
type CredentialInfo = credential.Credential
