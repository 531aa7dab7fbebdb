// Package resilience wraps outbound HTTP calls (the push vendor, the chat
// server's token endpoint) with a per-attempt timeout, bounded retries with
// jittered exponential backoff, and a circuit breaker.
package resilience

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// BreakerConfig holds configuration for the circuit breaker.
type BreakerConfig struct {
	// Name identifies the breaker in logs and in the Registry.
	Name string

	// MaxRequests is the number of trial requests allowed while half-open.
	// Default: 1
	MaxRequests uint32

	// Interval is the cyclic period for clearing counts while closed.
	// Default: 0 (never cleared while closed)
	Interval time.Duration

	// Timeout is how long the breaker stays open before going half-open.
	// Default: 30 seconds
	Timeout time.Duration

	// ConsecutiveFailures trips the breaker after this many failures in a row.
	// Zero disables the rule.
	ConsecutiveFailures uint32

	// FailureRatio trips the breaker once at least MinRequests were made and
	// this share of them failed. Zero MinRequests disables the rule.
	FailureRatio float64
	MinRequests  uint32

	// Logger receives state change logs.
	Logger zerolog.Logger
}

// DefaultBreakerConfig returns the breaker settings used for vendor calls.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:                name,
		MaxRequests:         1,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
		FailureRatio:        0.5,
		MinRequests:         10,
	}
}

// ReadyToTrip reports whether counts should open the breaker.
func (c BreakerConfig) ReadyToTrip(counts gobreaker.Counts) bool {
	if c.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= c.ConsecutiveFailures {
		return true
	}
	if c.MinRequests == 0 || counts.Requests < c.MinRequests {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= c.FailureRatio
}

func newBreaker[T any](cfg BreakerConfig) *gobreaker.CircuitBreaker[T] {
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := cfg.Logger
	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: cfg.ReadyToTrip,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})
}
