package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	tokenward "github.com/tokenward/tokenward"
)

// Error codes surfaced in JSON error bodies.
const (
	// CodeRateLimited is an exported constant or variable used by the authentication engine.
	CodeRateLimited = "RATE_LIMITED"
	// CodeAccountLocked is an exported constant or variable used by the authentication engine.
	CodeAccountLocked = "ACCOUNT_LOCKED"
	// CodeCaptchaRequired is an exported constant or variable used by the authentication engine.
	CodeCaptchaRequired = "CAPTCHA_REQUIRED"
	// CodeInvalidCredentials is an exported constant or variable used by the authentication engine.
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	// CodeUnavailable is an exported constant or variable used by the authentication engine.
	CodeUnavailable = "BACKEND_UNAVAILABLE"
)

// KeyFunc derives the limiter key for a request, e.g. the client IP or an
// authenticated subject ID.
type KeyFunc func(r *http.Request) string

// KeyByClientIP keys the policy on the remote address.
func KeyByClientIP() KeyFunc {
	return ClientIP
}

// RateLimit returns middleware that spends one point of the named policy
// per request. Denied requests get 429 with Retry-After; every response
// carries the X-RateLimit-Limit, X-RateLimit-Remaining, and
// X-RateLimit-Reset headers.
func RateLimit(engine *tokenward.Engine, policy string, key KeyFunc) func(http.Handler) http.Handler {
	if key == nil {
		key = KeyByClientIP()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			p, err := engine.QuotaPolicy(policy)
			if err != nil {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			res, err := engine.ConsumeQuota(r.Context(), policy, key(r))
			if err != nil {
				var limited *tokenward.RateLimitError
				if errors.As(err, &limited) {
					retryAfter := ceilSeconds(limited.RetryAfter.Seconds())
					w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
					setRateHeaders(w, p.Points, 0, limited.RetryAfter)
					writeJSONError(w, http.StatusTooManyRequests, CodeRateLimited)
					return
				}
				writeJSONError(w, http.StatusServiceUnavailable, CodeUnavailable)
				return
			}

			setRateHeaders(w, p.Points, res.Remaining, res.ResetAfter)
			next.ServeHTTP(w, r)
		})
	}
}

// WriteLoginError renders an engine login error as an HTTP response:
// 429 + Retry-After for lockout and throttling, 403 for an unsatisfied
// captcha, 401 otherwise. Lockout and rate limiting share the 429 status
// and differ only in the error code.
func WriteLoginError(w http.ResponseWriter, err error) {
	var locked *tokenward.LockedError
	switch {
	case errors.As(err, &locked):
		w.Header().Set("Retry-After", strconv.FormatInt(ceilSeconds(locked.RetryAfter.Seconds()), 10))
		writeJSONError(w, http.StatusTooManyRequests, CodeAccountLocked)
	case errors.Is(err, tokenward.ErrRateLimited):
		writeJSONError(w, http.StatusTooManyRequests, CodeRateLimited)
	case errors.Is(err, tokenward.ErrCaptchaRequired), errors.Is(err, tokenward.ErrCaptchaInvalid):
		writeJSONError(w, http.StatusForbidden, CodeCaptchaRequired)
	case errors.Is(err, tokenward.ErrStoreUnavailable):
		writeJSONError(w, http.StatusServiceUnavailable, CodeUnavailable)
	default:
		writeJSONError(w, http.StatusUnauthorized, CodeInvalidCredentials)
	}
}

// setRateHeaders writes the rate headers. The reset header carries the
// absolute time the counter or block clears, as an RFC 3339 timestamp.
func setRateHeaders(w http.ResponseWriter, limit, remaining int64, reset time.Duration) {
	w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(limit, 10))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
	w.Header().Set("X-RateLimit-Reset", time.Now().Add(reset).UTC().Format(time.RFC3339))
}

func writeJSONError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}

func ceilSeconds(s float64) int64 {
	n := int64(s)
	if float64(n) < s {
		n++
	}
	if n < 0 {
		n = 0
	}
	return n
}
