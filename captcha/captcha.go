package captcha

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

var (
	// ErrUnknownProvider is an exported constant or variable used by the authentication engine.
	ErrUnknownProvider = errors.New("captcha: unknown provider")
	// ErrVerifierUnavailable is an exported constant or variable used by the authentication engine.
	ErrVerifierUnavailable = errors.New("captcha: verifier unavailable")
)

// Verifier decides whether a solved-captcha proof is acceptable. It is a
// boolean oracle only; provider-specific scoring stays behind the
// implementation.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
}

// AllowAll accepts every token, including the empty one. Intended for
// development and tests.
type AllowAll struct{}

// Verify describes the verify operation and its observable behavior.
//
// Verify may return an error when input validation, dependency calls, or security checks fail.
// Verify does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (AllowAll) Verify(context.Context, string, string) (bool, error) {
	return true, nil
}

// DenyAll rejects every token. Useful for forced-lockdown configurations.
type DenyAll struct{}

// Verify describes the verify operation and its observable behavior.
//
// Verify may return an error when input validation, dependency calls, or security checks fail.
// Verify does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (DenyAll) Verify(context.Context, string, string) (bool, error) {
	return false, nil
}

// HTTPVerifier posts the token to a provider endpoint and reads a JSON
// `{"success": bool}` verdict, the shape shared by the common hosted
// captcha services.
type HTTPVerifier struct {
	endpoint string
	secret   string
	client   *http.Client
}

// NewHTTPVerifier creates a verifier for a hosted provider endpoint.
func NewHTTPVerifier(endpoint, secret string, timeout time.Duration) *HTTPVerifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPVerifier{
		endpoint: endpoint,
		secret:   secret,
		client:   &http.Client{Timeout: timeout},
	}
}

// Verify describes the verify operation and its observable behavior.
//
// Verify may return an error when input validation, dependency calls, or security checks fail.
// Verify does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (v *HTTPVerifier) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	if v == nil || v.endpoint == "" {
		return false, ErrVerifierUnavailable
	}
	if token == "" {
		return false, nil
	}

	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrVerifierUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrVerifierUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("%w: provider status %d", ErrVerifierUnavailable, resp.StatusCode)
	}

	var verdict struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return false, fmt.Errorf("%w: %v", ErrVerifierUnavailable, err)
	}

	return verdict.Success, nil
}

// New selects a verifier by provider name: "allow", "deny", or "http".
func New(provider, endpoint, secret string, timeout time.Duration) (Verifier, error) {
	switch provider {
	case "allow":
		return AllowAll{}, nil
	case "deny":
		return DenyAll{}, nil
	case "http":
		return NewHTTPVerifier(endpoint, secret, timeout), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
}
