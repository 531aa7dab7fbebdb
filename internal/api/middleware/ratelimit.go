package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/chatking/chatking/internal/api/models"
)

// RateLimitConfig holds configuration for rate limiting.
type RateLimitConfig struct {
	// Requests per window
	RequestLimit int
	// Window duration
	WindowLength time.Duration
}

// Default rate limit configurations.
var (
	// ReadRateLimit applies to read-only endpoints (120 req/min).
	ReadRateLimit = RateLimitConfig{
		RequestLimit: 120,
		WindowLength: time.Minute,
	}

	// MutationRateLimit applies to endpoints that reach the push vendor (30 req/min).
	MutationRateLimit = RateLimitConfig{
		RequestLimit: 30,
		WindowLength: time.Minute,
	}
)

// RateLimitByIP creates a rate limiter keyed by client IP. X-Forwarded-For is
// honoured through chi's RealIP middleware.
func RateLimitByIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(rateLimitExceededHandler(cfg)),
	)
}

// RateLimitBySubject creates a rate limiter keyed by the authenticated token
// subject, falling back to the client IP.
func RateLimitBySubject(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(keyBySubjectOrIP),
		httprate.WithLimitHandler(rateLimitExceededHandler(cfg)),
	)
}

func keyBySubjectOrIP(r *http.Request) (string, error) {
	if sub := GetSubject(r.Context()); sub != "" {
		return "sub:" + sub, nil
	}
	return httprate.KeyByRealIP(r)
}

// rateLimitExceededHandler writes a 429 problem. httprate does not expose the
// reset time, so Retry-After is the full window.
func rateLimitExceededHandler(cfg RateLimitConfig) http.HandlerFunc {
	retryAfter := strconv.Itoa(int(cfg.WindowLength.Seconds()))
	return func(w http.ResponseWriter, r *http.Request) {
		problem := models.NewTooManyRequests(GetRequestID(r.Context()), "Rate limit exceeded. Please try again later.")
		problem.Instance = r.URL.Path
		w.Header().Set("Retry-After", retryAfter)
		problem.Write(w)
	}
}
