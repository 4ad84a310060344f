package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	tokenward "github.com/tokenward/tokenward"
)

type staticProvider struct{}

func (staticProvider) VerifySubject(_ context.Context, identifier, secret string) (*tokenward.Subject, error) {
	if identifier == "alice" && secret == "correct-password-123" {
		return &tokenward.Subject{SubjectID: "sub-alice"}, nil
	}
	return nil, tokenward.ErrInvalidCredentials
}

func newTestEngine(t *testing.T, mutate func(*tokenward.Config)) (*tokenward.Engine, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := tokenward.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("test-secret")
	if mutate != nil {
		mutate(&cfg)
	}

	engine, err := tokenward.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithSubjectProvider(staticProvider{}).
		Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	return engine, func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	}
}

func loginToken(t *testing.T, engine *tokenward.Engine) string {
	t.Helper()
	res, err := engine.Login(context.Background(), "alice", "correct-password-123")
	if err != nil {
		t.Fatalf("seed login failed: %v", err)
	}
	return res.AccessToken
}

func guardedEcho(t *testing.T, engine *tokenward.Engine) http.Handler {
	t.Helper()
	return Guard(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Error("identity missing behind the guard")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("X-Subject", identity.SubjectID)
		w.WriteHeader(http.StatusOK)
	}))
}

func TestGuardAcceptsValidBearer(t *testing.T) {
	engine, done := newTestEngine(t, nil)
	defer done()

	handler := guardedEcho(t, engine)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+loginToken(t, engine))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Subject") != "sub-alice" {
		t.Fatalf("unexpected subject header: %q", rec.Header().Get("X-Subject"))
	}
}

func TestGuardRejectsMissingOrMalformedHeader(t *testing.T) {
	engine, done := newTestEngine(t, nil)
	defer done()

	handler := guardedEcho(t, engine)
	token := loginToken(t, engine)

	cases := map[string]string{
		"no header":      "",
		"wrong scheme":   "Basic " + token,
		"empty token":    "Bearer ",
		"tampered token": "Bearer " + token + "x",
	}

	for name, header := range cases {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", name, rec.Code)
		}
	}
}

func TestGuardRejectsExpiredToken(t *testing.T) {
	engine, done := newTestEngine(t, func(cfg *tokenward.Config) {
		cfg.JWT.AccessTTL = time.Second
		cfg.JWT.Leeway = 0
	})
	defer done()

	token := loginToken(t, engine)
	time.Sleep(1500 * time.Millisecond)

	handler := guardedEcho(t, engine)
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %d", rec.Code)
	}
}

func TestGuardNilEngine(t *testing.T) {
	handler := Guard(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("handler reached with nil engine")
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:4711"

	if got := ClientIP(req); got != "192.0.2.10" {
		t.Fatalf("expected remote host, got %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 192.0.2.1")
	if got := ClientIP(req); got != "203.0.113.9" {
		t.Fatalf("expected first forwarded hop, got %q", got)
	}
}
