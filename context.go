package tokenward

import "context"

type clientIPContextKey struct{}
type tenantIDContextKey struct{}
type userAgentContextKey struct{}
type captchaTokenContextKey struct{}

// WithClientIP attaches the caller’s IP address to ctx. The Engine uses it
// for per-IP rate limiting, lockout keying, and security events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithTenantID attaches a tenant identifier to ctx for multi-tenant
// credential isolation. When no tenant is attached, the default tenant
// "default" is used.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantIDContextKey{}, tenantID)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx. It is recorded
// on issued credentials for audit trails.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// WithCaptchaToken attaches a solved-captcha proof to ctx. The Engine
// verifies it through the configured [captcha.Verifier] when the failure
// tracker demands a challenge.
func WithCaptchaToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, captchaTokenContextKey{}, token)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}

func tenantIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return "default"
	}

	tenantID, _ := ctx.Value(tenantIDContextKey{}).(string)
	if tenantID == "" {
		return "default"
	}

	return tenantID
}

func captchaTokenFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	token, _ := ctx.Value(captchaTokenContextKey{}).(string)
	return token
}
