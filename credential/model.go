package credential

// Reason records why a credential stopped being usable.
type Reason string

const (
	// ReasonRotated marks a parent credential superseded by its child.
	ReasonRotated Reason = "rotated"
	// ReasonLogout marks a single family ended by the subject.
	ReasonLogout Reason = "logout"
	// ReasonLogoutAll marks a subject-wide revocation.
	ReasonLogoutAll Reason = "logout_all"
	// ReasonReuseDetected marks a family killed after replay of a
	// superseded credential.
	ReasonReuseDetected Reason = "reuse_detected"
	// ReasonExpired marks a credential presented after its expiry. Expiry
	// never cascades to the family.
	ReasonExpired Reason = "expired"
	// ReasonCredentialChange marks revocation after a password or key change.
	ReasonCredentialChange Reason = "credential_change"
	// ReasonAdminRevoke marks an operator-initiated revocation.
	ReasonAdminRevoke Reason = "admin_revoke"
)

// Credential is one renewal credential in a rotation family. The raw secret
// never appears here; Digest is the SHA-256 of the secret and is the only
// form that touches storage.
type Credential struct {
	ID            string
	SubjectID     string
	TenantID      string
	FamilyID      string
	Digest        [32]byte
	ParentID      string
	ReplacedBy    string
	IssuedAt      int64
	ExpiresAt     int64
	LastUsedAt    int64
	Revoked       bool
	RevokedReason Reason
	RevokedAt     int64
	SourceIP      string
	UserAgent     string
}

// Active reports whether the credential can still be presented: not revoked
// and not past expiry at the given unix time.
func (c *Credential) Active(nowUnix int64) bool {
	return c != nil && !c.Revoked && c.ExpiresAt > nowUnix
}
