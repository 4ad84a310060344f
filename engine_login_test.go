package tokenward

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

// loginTestConfig returns a base config with small protection budgets so
// tests can drive lockout transitions quickly.
func loginTestConfig() Config {
	cfg := defaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("test-secret")
	cfg.Credential.TTL = 24 * time.Hour
	cfg.Login.MaxAttempts = 3
	cfg.Login.AttemptWindow = time.Minute
	cfg.Login.LockDuration = time.Minute
	cfg.Login.FailureWindow = time.Minute
	cfg.Login.CaptchaThreshold = 0
	return cfg
}

// stubSubjectProvider verifies against an in-memory identifier/secret map
// and counts how many times the engine called it.
type stubSubjectProvider struct {
	subjects map[string]string
	calls    atomic.Int64
}

func newStubProvider() *stubSubjectProvider {
	return &stubSubjectProvider{
		subjects: map[string]string{
			"alice": "correct-password-123",
			"bob":   "correct-password-123",
		},
	}
}

func (p *stubSubjectProvider) VerifySubject(_ context.Context, identifier, secret string) (*Subject, error) {
	p.calls.Add(1)
	want, ok := p.subjects[identifier]
	if !ok || want != secret {
		return nil, ErrInvalidCredentials
	}
	return &Subject{SubjectID: "sub-" + identifier}, nil
}

func newLoginEngine(t *testing.T, cfg Config, mutate func(*Builder)) (*Engine, *stubSubjectProvider, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	provider := newStubProvider()

	builder := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithSubjectProvider(provider)
	if mutate != nil {
		mutate(builder)
	}

	engine, err := builder.Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	return engine, provider, mr, func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	}
}

func TestLoginSuccessIssuesTokens(t *testing.T) {
	engine, _, _, done := newLoginEngine(t, loginTestConfig(), nil)
	defer done()

	ctx := context.Background()
	res, err := engine.Login(ctx, "alice", "correct-password-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if res.AccessToken == "" || res.RenewalToken == "" {
		t.Fatal("expected both tokens on success")
	}
	if res.SubjectID != "sub-alice" {
		t.Fatalf("unexpected subject: %q", res.SubjectID)
	}
	if res.FamilyID == "" {
		t.Fatal("expected a family ID")
	}
	if res.Degraded {
		t.Fatal("healthy backend should not report degraded")
	}

	identity, err := engine.ValidateAccess(ctx, res.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccess failed: %v", err)
	}
	if identity.SubjectID != "sub-alice" || identity.FamilyID != res.FamilyID {
		t.Fatalf("identity mismatch: %+v", identity)
	}
}

func TestLoginWrongSecretIsGeneric(t *testing.T) {
	engine, _, _, done := newLoginEngine(t, loginTestConfig(), nil)
	defer done()

	_, err := engine.Login(context.Background(), "alice", "wrong-password")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginUnknownIdentifierIsGeneric(t *testing.T) {
	engine, _, _, done := newLoginEngine(t, loginTestConfig(), nil)
	defer done()

	// Unknown identifiers must be indistinguishable from wrong secrets.
	_, err := engine.Login(context.Background(), "mallory", "whatever")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginEmptyInputRejected(t *testing.T) {
	engine, _, _, done := newLoginEngine(t, loginTestConfig(), nil)
	defer done()

	ctx := context.Background()
	if _, err := engine.Login(ctx, "", "secret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("empty identifier: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := engine.Login(ctx, "alice", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("empty secret: expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginLockoutAfterBudgetExhausted(t *testing.T) {
	cfg := loginTestConfig()
	engine, _, _, done := newLoginEngine(t, cfg, nil)
	defer done()

	ctx := context.Background()

	// The budget itself yields generic failures.
	for i := int64(0); i < cfg.Login.MaxAttempts; i++ {
		_, err := engine.Login(ctx, "alice", "wrong-password")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}

	// The attempt past the budget trips the lock.
	_, err := engine.Login(ctx, "alice", "wrong-password")
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}

	var locked *LockedError
	if !errors.As(err, &locked) {
		t.Fatalf("expected *LockedError, got %T", err)
	}
	if locked.RetryAfter <= 0 || locked.RetryAfter > cfg.Login.LockDuration {
		t.Fatalf("RetryAfter out of range: %v", locked.RetryAfter)
	}
}

func TestLoginLockedSkipsProviderCall(t *testing.T) {
	cfg := loginTestConfig()
	engine, provider, _, done := newLoginEngine(t, cfg, nil)
	defer done()

	ctx := context.Background()
	for i := int64(0); i <= cfg.Login.MaxAttempts; i++ {
		engine.Login(ctx, "alice", "wrong-password")
	}
	before := provider.calls.Load()

	// Correct secret, but the lock must short-circuit before the provider.
	_, err := engine.Login(ctx, "alice", "correct-password-123")
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
	if provider.calls.Load() != before {
		t.Fatal("provider was called for a locked identifier")
	}
}

func TestLoginLockExpiresAfterDuration(t *testing.T) {
	cfg := loginTestConfig()
	engine, _, mr, done := newLoginEngine(t, cfg, nil)
	defer done()

	ctx := context.Background()
	for i := int64(0); i <= cfg.Login.MaxAttempts; i++ {
		engine.Login(ctx, "alice", "wrong-password")
	}

	mr.FastForward(cfg.Login.LockDuration + time.Second)

	res, err := engine.Login(ctx, "alice", "correct-password-123")
	if err != nil {
		t.Fatalf("login after lock expiry failed: %v", err)
	}
	if res.AccessToken == "" {
		t.Fatal("expected tokens after lock expiry")
	}
}

func TestLoginSuccessResetsCounters(t *testing.T) {
	cfg := loginTestConfig()
	engine, _, _, done := newLoginEngine(t, cfg, nil)
	defer done()

	ctx := context.Background()
	for i := int64(0); i < cfg.Login.MaxAttempts-1; i++ {
		engine.Login(ctx, "alice", "wrong-password")
	}
	if _, err := engine.Login(ctx, "alice", "correct-password-123"); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	// A fresh budget: the same number of failures must not lock.
	for i := int64(0); i < cfg.Login.MaxAttempts; i++ {
		_, err := engine.Login(ctx, "alice", "wrong-password")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("post-reset attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}
}

func TestLoginLockoutScopedPerIdentifier(t *testing.T) {
	cfg := loginTestConfig()
	engine, _, _, done := newLoginEngine(t, cfg, nil)
	defer done()

	ctx := context.Background()
	for i := int64(0); i <= cfg.Login.MaxAttempts; i++ {
		engine.Login(ctx, "alice", "wrong-password")
	}

	if _, err := engine.Login(ctx, "bob", "correct-password-123"); err != nil {
		t.Fatalf("bob login failed: %v", err)
	}
}

func TestLoginLockoutScopedPerClientIP(t *testing.T) {
	cfg := loginTestConfig()
	engine, _, _, done := newLoginEngine(t, cfg, nil)
	defer done()

	attacker := WithClientIP(context.Background(), "198.51.100.9")
	for i := int64(0); i <= cfg.Login.MaxAttempts; i++ {
		engine.Login(attacker, "alice", "wrong-password")
	}
	if _, err := engine.Login(attacker, "alice", "correct-password-123"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected lock on the attacker's address, got %v", err)
	}

	// The account owner on another network still gets in.
	owner := WithClientIP(context.Background(), "203.0.113.7")
	if _, err := engine.Login(owner, "alice", "correct-password-123"); err != nil {
		t.Fatalf("owner login failed: %v", err)
	}
}

func TestLoginLockoutScopedPerTenant(t *testing.T) {
	cfg := loginTestConfig()
	engine, _, _, done := newLoginEngine(t, cfg, nil)
	defer done()

	ctxA := WithTenantID(context.Background(), "tenant-a")
	for i := int64(0); i <= cfg.Login.MaxAttempts; i++ {
		engine.Login(ctxA, "alice", "wrong-password")
	}
	if _, err := engine.Login(ctxA, "alice", "correct-password-123"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected tenant-a lock, got %v", err)
	}

	// The same identifier in another tenant is unaffected.
	ctxB := WithTenantID(context.Background(), "tenant-b")
	if _, err := engine.Login(ctxB, "alice", "correct-password-123"); err != nil {
		t.Fatalf("tenant-b login failed: %v", err)
	}
}

func TestLoginProtectionDisabledNeverLocks(t *testing.T) {
	cfg := loginTestConfig()
	cfg.Login.Enabled = false
	engine, _, _, done := newLoginEngine(t, cfg, nil)
	defer done()

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		_, err := engine.Login(ctx, "alice", "wrong-password")
		if errors.Is(err, ErrAccountLocked) {
			t.Fatalf("attempt %d: unexpected lock with protection disabled", i+1)
		}
	}
	if _, err := engine.Login(ctx, "alice", "correct-password-123"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
}

func TestLoginFailClosedSurfacesStoreOutage(t *testing.T) {
	cfg := loginTestConfig()
	cfg.Login.FailOpen = false
	engine, _, mr, done := newLoginEngine(t, cfg, nil)
	defer done()

	mr.Close()

	_, err := engine.Login(context.Background(), "alice", "correct-password-123")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestLoginBruteForceEmitsSecurityEvent(t *testing.T) {
	cfg := loginTestConfig()
	sink := NewChannelSink(16)
	engine, _, _, done := newLoginEngine(t, cfg, func(b *Builder) {
		b.WithSecuritySink(sink)
	})
	defer done()

	ctx := context.Background()
	for i := int64(0); i <= cfg.Login.MaxAttempts; i++ {
		engine.Login(ctx, "alice", "wrong-password")
	}

	select {
	case event := <-sink.Events():
		if event.Kind != "brute_force" {
			t.Fatalf("expected brute_force event, got %q", event.Kind)
		}
		if event.Count < cfg.Login.MaxAttempts {
			t.Fatalf("expected count >= %d, got %d", cfg.Login.MaxAttempts, event.Count)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no security event received")
	}
}

func TestLoginMetricsCountOutcomes(t *testing.T) {
	cfg := loginTestConfig()
	cfg.Metrics.Enabled = true
	engine, _, _, done := newLoginEngine(t, cfg, nil)
	defer done()

	ctx := context.Background()
	engine.Login(ctx, "alice", "correct-password-123")
	engine.Login(ctx, "alice", "wrong-password")
	engine.Login(ctx, "alice", "wrong-password")

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricLoginSuccess] != 1 {
		t.Fatalf("expected 1 success, got %d", snap.Counters[MetricLoginSuccess])
	}
	if snap.Counters[MetricLoginFailure] != 2 {
		t.Fatalf("expected 2 failures, got %d", snap.Counters[MetricLoginFailure])
	}
	if snap.Counters[MetricCredentialIssued] != 1 {
		t.Fatalf("expected 1 issued credential, got %d", snap.Counters[MetricCredentialIssued])
	}
}

func TestEngineNilGuards(t *testing.T) {
	var engine *Engine
	if _, err := engine.Login(context.Background(), "a", "b"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if _, err := engine.Refresh(context.Background(), "token"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if _, err := engine.ValidateAccess(context.Background(), "token"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
}
