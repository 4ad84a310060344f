package tokenward

import (
	"strings"
	"testing"
	"time"
)

// validTestConfig returns a config that passes Validate.
func validTestConfig() Config {
	cfg := defaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("test-secret")
	return cfg
}

func TestValidateAcceptsDefaultsWithKeys(t *testing.T) {
	cfg := validTestConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "zero access TTL",
			mutate:  func(c *Config) { c.JWT.AccessTTL = 0 },
			wantErr: "AccessTTL",
		},
		{
			name:    "unknown signing method",
			mutate:  func(c *Config) { c.JWT.SigningMethod = "rs256" },
			wantErr: "SigningMethod",
		},
		{
			name:    "hs256 without key",
			mutate:  func(c *Config) { c.JWT.PrivateKey = nil },
			wantErr: "PrivateKey",
		},
		{
			name: "ed25519 without verify material",
			mutate: func(c *Config) {
				c.JWT.SigningMethod = "ed25519"
				c.JWT.PrivateKey = nil
			},
			wantErr: "PublicKey",
		},
		{
			name:    "zero credential TTL",
			mutate:  func(c *Config) { c.Credential.TTL = 0 },
			wantErr: "Credential TTL",
		},
		{
			name: "credential TTL not above access TTL",
			mutate: func(c *Config) {
				c.JWT.AccessTTL = time.Hour
				c.Credential.TTL = time.Hour
			},
			wantErr: "must exceed",
		},
		{
			name:    "zero max attempts",
			mutate:  func(c *Config) { c.Login.MaxAttempts = 0 },
			wantErr: "MaxAttempts",
		},
		{
			name:    "zero lock duration",
			mutate:  func(c *Config) { c.Login.LockDuration = 0 },
			wantErr: "LockDuration",
		},
		{
			name:    "negative captcha threshold",
			mutate:  func(c *Config) { c.Login.CaptchaThreshold = -1 },
			wantErr: "CaptchaThreshold",
		},
		{
			name: "policy without points",
			mutate: func(c *Config) {
				c.Policies = append(c.Policies, RatePolicy{Name: "bad", Window: time.Minute})
			},
			wantErr: "points",
		},
		{
			name: "duplicate policy name",
			mutate: func(c *Config) {
				c.Policies = append(c.Policies, c.Policies[0])
			},
			wantErr: "duplicate",
		},
		{
			name: "login policy redeclared",
			mutate: func(c *Config) {
				c.Policies = append(c.Policies, RatePolicy{
					Name:   PolicyLoginAttempt,
					Points: 5,
					Window: time.Minute,
				})
			},
			wantErr: "login",
		},
		{
			name: "audit enabled without buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantErr: "BufferSize",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validTestConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error %q does not mention %q", err.Error(), tc.wantErr)
			}
		})
	}
}

func TestValidateSkipsLoginChecksWhenDisabled(t *testing.T) {
	cfg := validTestConfig()
	cfg.Login.Enabled = false
	cfg.Login.MaxAttempts = 0
	cfg.Login.LockDuration = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled login should skip thresholds, got %v", err)
	}
}

func TestDefaultConfigPolicyNames(t *testing.T) {
	cfg := DefaultConfig()

	want := map[string]bool{
		PolicyGlobalIP:     false,
		PolicyUploadUser:   false,
		PolicyChunkSession: false,
		PolicyDownloadIP:   false,
	}
	for _, p := range cfg.Policies {
		if _, ok := want[p.Name]; !ok {
			t.Fatalf("unexpected policy %q", p.Name)
		}
		want[p.Name] = true
	}
	for name, seen := range want {
		if !seen {
			t.Fatalf("missing default policy %q", name)
		}
	}
}

func TestCloneConfigIsolatesCallerMutation(t *testing.T) {
	cfg := validTestConfig()
	cfg.JWT.VerifyKeys = map[string][]byte{"k1": []byte("abc")}

	clone := cloneConfig(cfg)

	cfg.JWT.PrivateKey[0] = 'X'
	cfg.JWT.VerifyKeys["k1"][0] = 'X'
	cfg.Policies[0].Points = 999999

	if clone.JWT.PrivateKey[0] == 'X' {
		t.Fatal("private key aliased between clone and source")
	}
	if clone.JWT.VerifyKeys["k1"][0] == 'X' {
		t.Fatal("verify key aliased between clone and source")
	}
	if clone.Policies[0].Points == 999999 {
		t.Fatal("policy slice aliased between clone and source")
	}
}

func TestLoginPoliciesDeriveFromConfig(t *testing.T) {
	cfg := validTestConfig()
	cfg.Login.MaxAttempts = 7
	cfg.Login.AttemptWindow = 10 * time.Minute
	cfg.Login.LockDuration = 20 * time.Minute
	cfg.Login.CaptchaThreshold = 4
	cfg.Login.FailOpen = false

	attempt, failure := cfg.loginPolicies()

	if attempt.Name != PolicyLoginAttempt || attempt.Points != 7 || attempt.Block != 20*time.Minute {
		t.Fatalf("unexpected attempt policy: %+v", attempt)
	}
	if attempt.FailMode != FailClosed {
		t.Fatal("expected fail-closed attempt policy")
	}
	if failure.Name != PolicyLoginFailure || failure.Points != 4 || failure.Block != 0 {
		t.Fatalf("unexpected failure policy: %+v", failure)
	}

	// A zero captcha threshold still needs a positive budget for the
	// track-only counter.
	cfg.Login.CaptchaThreshold = 0
	_, failure = cfg.loginPolicies()
	if failure.Points != 7 {
		t.Fatalf("expected fallback to MaxAttempts, got %d", failure.Points)
	}
}
