package tokenward

import (
	"errors"
	"time"
)

// Config defines a public type used by tokenward APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	JWT        JWTConfig
	Credential CredentialConfig
	Login      LoginProtectionConfig
	Captcha    CaptchaConfig
	Policies   []RatePolicy
	Audit      AuditConfig
	Metrics    MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig defines a public type used by tokenward APIs.
//
// JWTConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	KeyID         string
	VerifyKeys    map[string][]byte
	Leeway        time.Duration
	RequireIAT    bool
	MaxFutureIAT  time.Duration
}

/*
====================================
CREDENTIAL CONFIG
====================================
*/

// CredentialConfig defines a public type used by tokenward APIs.
//
// CredentialConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CredentialConfig struct {
	RedisPrefix string
	TTL         time.Duration
}

/*
====================================
LOGIN PROTECTION CONFIG
====================================
*/

// LoginProtectionConfig defines a public type used by tokenward APIs.
//
// LoginProtectionConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type LoginProtectionConfig struct {
	Enabled          bool
	MaxAttempts      int64
	AttemptWindow    time.Duration
	LockDuration     time.Duration
	FailureWindow    time.Duration
	CaptchaThreshold int64
	// FailOpen lets logins proceed when the counter store is down; each
	// such decision is marked degraded in audit metadata.
	FailOpen bool
}

/*
====================================
CAPTCHA CONFIG
====================================
*/

// CaptchaConfig defines a public type used by tokenward APIs.
//
// CaptchaConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CaptchaConfig struct {
	Enabled bool
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig defines a public type used by tokenward APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig defines a public type used by tokenward APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// Names of the built-in abuse policies installed by defaultConfig.
const (
	// PolicyGlobalIP is an exported constant or variable used by the authentication engine.
	PolicyGlobalIP = "global_ip"
	// PolicyUploadUser is an exported constant or variable used by the authentication engine.
	PolicyUploadUser = "upload_user"
	// PolicyChunkSession is an exported constant or variable used by the authentication engine.
	PolicyChunkSession = "chunk_session"
	// PolicyDownloadIP is an exported constant or variable used by the authentication engine.
	PolicyDownloadIP = "download_ip"
	// PolicyLoginAttempt is an exported constant or variable used by the authentication engine.
	PolicyLoginAttempt = "login_attempt"
	// PolicyLoginFailure is an exported constant or variable used by the authentication engine.
	PolicyLoginFailure = "login_failure"
)

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration: Ed25519 access tokens,
// seven-day credential families, 5/15m login lockout with a captcha
// threshold of 3, and the built-in abuse policies.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     5 * time.Minute,
			SigningMethod: "ed25519",
			Issuer:        "tokenward",
			MaxFutureIAT:  10 * time.Minute,
		},
		Credential: CredentialConfig{
			RedisPrefix: "tw",
			TTL:         7 * 24 * time.Hour,
		},
		Login: LoginProtectionConfig{
			Enabled:          true,
			MaxAttempts:      5,
			AttemptWindow:    15 * time.Minute,
			LockDuration:     15 * time.Minute,
			FailureWindow:    1 * time.Hour,
			CaptchaThreshold: 3,
			FailOpen:         true,
		},
		Captcha: CaptchaConfig{
			Enabled: false,
		},
		Policies: []RatePolicy{
			{Name: PolicyGlobalIP, Points: 300, Window: time.Minute, Block: 0, FailMode: FailOpen},
			{Name: PolicyUploadUser, Points: 20, Window: time.Hour, Block: 10 * time.Minute, FailMode: FailClosed},
			{Name: PolicyChunkSession, Points: 500, Window: 10 * time.Minute, Block: 5 * time.Minute, FailMode: FailClosed},
			{Name: PolicyDownloadIP, Points: 120, Window: time.Minute, Block: 0, FailMode: FailOpen},
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}

	switch c.JWT.SigningMethod {
	case "", "ed25519":
		if len(c.JWT.PublicKey) == 0 && len(c.JWT.VerifyKeys) == 0 {
			return errors.New("ed25519 requires PublicKey or VerifyKeys")
		}
	case "hs256":
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("hs256 requires PrivateKey")
		}
	default:
		return errors.New("JWT SigningMethod must be ed25519 or hs256")
	}

	if c.Credential.TTL <= 0 {
		return errors.New("Credential TTL must be > 0")
	}
	if c.Credential.TTL <= c.JWT.AccessTTL {
		return errors.New("Credential TTL must exceed JWT AccessTTL")
	}

	if c.Login.Enabled {
		if c.Login.MaxAttempts <= 0 {
			return errors.New("Login MaxAttempts must be > 0")
		}
		if c.Login.AttemptWindow <= 0 {
			return errors.New("Login AttemptWindow must be > 0")
		}
		if c.Login.LockDuration <= 0 {
			return errors.New("Login LockDuration must be > 0")
		}
		if c.Login.FailureWindow <= 0 {
			return errors.New("Login FailureWindow must be > 0")
		}
		if c.Login.CaptchaThreshold < 0 {
			return errors.New("Login CaptchaThreshold must be >= 0")
		}
	}

	seen := make(map[string]struct{}, len(c.Policies))
	for _, p := range c.Policies {
		if err := p.Validate(); err != nil {
			return err
		}
		if p.Name == PolicyLoginAttempt || p.Name == PolicyLoginFailure {
			return errors.New("Policies must not redeclare the login policies")
		}
		if _, dup := seen[p.Name]; dup {
			return errors.New("Policies contains a duplicate name: " + p.Name)
		}
		seen[p.Name] = struct{}{}
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}

func cloneBytes(in []byte) []byte {
	if in == nil {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

func cloneConfig(in Config) Config {
	out := in

	out.JWT.PrivateKey = cloneBytes(in.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(in.JWT.PublicKey)

	if in.JWT.VerifyKeys != nil {
		out.JWT.VerifyKeys = make(map[string][]byte, len(in.JWT.VerifyKeys))
		for kid, key := range in.JWT.VerifyKeys {
			out.JWT.VerifyKeys[kid] = cloneBytes(key)
		}
	}

	if in.Policies != nil {
		out.Policies = make([]RatePolicy, len(in.Policies))
		copy(out.Policies, in.Policies)
	}

	return out
}

func (c *Config) loginPolicies() (attempt, failure RatePolicy) {
	mode := FailClosed
	if c.Login.FailOpen {
		mode = FailOpen
	}

	attempt = RatePolicy{
		Name:     PolicyLoginAttempt,
		Points:   c.Login.MaxAttempts,
		Window:   c.Login.AttemptWindow,
		Block:    c.Login.LockDuration,
		FailMode: mode,
	}
	failurePoints := c.Login.CaptchaThreshold
	if failurePoints <= 0 {
		failurePoints = c.Login.MaxAttempts
	}
	failure = RatePolicy{
		Name:     PolicyLoginFailure,
		Points:   failurePoints,
		Window:   c.Login.FailureWindow,
		Block:    0,
		FailMode: FailOpen,
	}
	return attempt, failure
}
