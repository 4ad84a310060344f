package tokenward

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/tokenward/tokenward/captcha"
	"github.com/tokenward/tokenward/credential"
	"github.com/tokenward/tokenward/internal/limiters"
	"github.com/tokenward/tokenward/internal/rate"
	"github.com/tokenward/tokenward/jwt"
)

// Builder defines a public type used by tokenward APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	subjectProvider SubjectProvider
	captchaVerifier captcha.Verifier
	auditSink       AuditSink
	securitySink    AuditSink

	built bool
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or security checks fail.
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig may return an error when input validation, dependency calls, or security checks fail.
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis describes the withredis operation and its observable behavior.
//
// WithRedis may return an error when input validation, dependency calls, or security checks fail.
// WithRedis does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithSubjectProvider describes the withsubjectprovider operation and its observable behavior.
//
// WithSubjectProvider may return an error when input validation, dependency calls, or security checks fail.
// WithSubjectProvider does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithSubjectProvider(sp SubjectProvider) *Builder {
	b.subjectProvider = sp
	return b
}

// WithCaptchaVerifier describes the withcaptchaverifier operation and its observable behavior.
//
// WithCaptchaVerifier may return an error when input validation, dependency calls, or security checks fail.
// WithCaptchaVerifier does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithCaptchaVerifier(v captcha.Verifier) *Builder {
	b.captchaVerifier = v
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink may return an error when input validation, dependency calls, or security checks fail.
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithSecuritySink describes the withsecuritysink operation and its observable behavior.
//
// WithSecuritySink may return an error when input validation, dependency calls, or security checks fail.
// WithSecuritySink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithSecuritySink(sink AuditSink) *Builder {
	b.securitySink = sink
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled may return an error when input validation, dependency calls, or security checks fail.
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms describes the withlatencyhistograms operation and its observable behavior.
//
// WithLatencyHistograms may return an error when input validation, dependency calls, or security checks fail.
// WithLatencyHistograms does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.subjectProvider == nil {
		return nil, errors.New("subject provider required")
	}

	if cfg.Captcha.Enabled && b.captchaVerifier == nil {
		return nil, errors.New("Captcha enabled but no verifier provided")
	}

	engine := &Engine{
		config:   cfg,
		subjects: b.subjectProvider,
		captcha:  b.captchaVerifier,
	}

	// -------- CREDENTIAL STORE --------
	engine.credentials = credential.NewStore(b.redis, cfg.Credential.RedisPrefix, cfg.Credential.TTL)

	// -------- RATE LIMITING --------
	engine.rateLimiter = rate.New(b.redis)

	attempt, failure := cfg.loginPolicies()
	engine.login = limiters.NewLoginLimiter(engine.rateLimiter, limiters.LoginConfig{
		Enabled:          cfg.Login.Enabled,
		Attempt:          attempt,
		Failure:          failure,
		CaptchaThreshold: cfg.Login.CaptchaThreshold,
	})

	policies, err := limiters.NewPolicySet(engine.rateLimiter, cfg.Policies)
	if err != nil {
		return nil, err
	}
	engine.policies = policies

	// -------- OBSERVABILITY --------
	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	if b.securitySink != nil {
		engine.security = newAuditDispatcher(AuditConfig{
			Enabled:    true,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: true,
		}, b.securitySink)
	}
	engine.metrics = NewMetrics(cfg.Metrics)

	// -------- ACCESS TOKENS --------
	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		KeyID:         cfg.JWT.KeyID,
		VerifyKeys:    cfg.JWT.VerifyKeys,
		Leeway:        cfg.JWT.Leeway,
		RequireIAT:    cfg.JWT.RequireIAT,
		MaxFutureIAT:  cfg.JWT.MaxFutureIAT,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	b.built = true

	return engine, nil
}
