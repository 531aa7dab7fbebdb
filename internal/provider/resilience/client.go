package resilience

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned without touching the network while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config holds configuration for the resilient HTTP client.
type Config struct {
	// Name identifies this client in logs, the breaker and the Registry.
	Name string

	// Timeout bounds each individual attempt.
	// Default: 10 seconds
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt. Zero means
	// a single attempt.
	MaxRetries uint64

	// InitialInterval is the first backoff interval.
	// Default: 200ms
	InitialInterval time.Duration

	// MaxInterval caps the backoff interval.
	// Default: 5 seconds
	MaxInterval time.Duration

	// RandomizationFactor spreads each interval by +/- this fraction.
	// Default: backoff.DefaultRandomizationFactor
	RandomizationFactor float64

	// Breaker configures the circuit breaker. If nil, DefaultBreakerConfig(Name) is used.
	Breaker *BreakerConfig

	// Registry, if set, tracks this client's health.
	Registry *Registry

	// Logger receives retry logs.
	Logger zerolog.Logger
}

// DefaultConfig returns the settings used for vendor calls.
func DefaultConfig(name string) Config {
	breaker := DefaultBreakerConfig(name)
	return Config{
		Name:                name,
		Timeout:             10 * time.Second,
		MaxRetries:          3,
		InitialInterval:     200 * time.Millisecond,
		MaxInterval:         5 * time.Second,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Breaker:             &breaker,
	}
}

// Client is an HTTP client with retries and a circuit breaker. It satisfies
// the HTTPDoer interfaces of the API clients in this module.
type Client struct {
	name       string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	registry   *Registry
	logger     zerolog.Logger
	cfg        Config
}

// NewClient creates a resilient HTTP client and registers it with cfg.Registry.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 200 * time.Millisecond
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 5 * time.Second
	}
	if cfg.RandomizationFactor == 0 {
		cfg.RandomizationFactor = backoff.DefaultRandomizationFactor
	}

	breakerCfg := DefaultBreakerConfig(cfg.Name)
	if cfg.Breaker != nil {
		breakerCfg = *cfg.Breaker
	}
	breakerCfg.Logger = cfg.Logger

	c := &Client{
		name:       cfg.Name,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    newBreaker[*http.Response](breakerCfg), //nolint:bodyclose // type param, not response
		registry:   cfg.Registry,
		logger:     cfg.Logger.With().Str("client", cfg.Name).Logger(),
		cfg:        cfg,
	}
	if c.registry != nil {
		c.registry.Register(c)
	}
	return c
}

// Name returns the client name.
func (c *Client) Name() string {
	return c.name
}

// Do sends req, retrying network errors, 5xx and 429 responses with jittered
// exponential backoff. Other responses are returned as-is for the caller to
// interpret. If retries run out on a retryable status, the last response is
// returned with a nil error.
//
// A request body is buffered so it can be replayed on each attempt.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	req, err := replayable(req)
	if err != nil {
		return nil, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialInterval
	bo.MaxInterval = c.cfg.MaxInterval
	bo.RandomizationFactor = c.cfg.RandomizationFactor
	bo.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.cfg.MaxRetries), ctx)

	var last *http.Response
	operation := func() error {
		if last != nil {
			discard(last)
			last = nil
		}

		attempt := req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return backoff.Permanent(fmt.Errorf("rewind request body: %w", err))
			}
			attempt.Body = body
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // caller closes
			resp, err := c.httpClient.Do(attempt)
			if err != nil {
				return nil, err
			}
			if retryable(resp.StatusCode) {
				return resp, &StatusError{StatusCode: resp.StatusCode}
			}
			return resp, nil
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(ErrCircuitOpen)
		}
		last = resp
		return err
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Debug().
			Err(err).
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Dur("wait", wait).
			Msg("retrying request")
	}

	err = backoff.RetryNotify(operation, policy, notify)
	if err != nil && last == nil {
		c.record(err)
		return nil, err
	}
	if last.StatusCode >= 500 {
		c.record(&StatusError{StatusCode: last.StatusCode})
	} else {
		c.record(nil)
	}
	return last, nil
}

// State returns the breaker state.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

// Counts returns the breaker counters for the current generation.
func (c *Client) Counts() gobreaker.Counts {
	return c.breaker.Counts()
}

func (c *Client) record(err error) {
	if c.registry == nil {
		return
	}
	if err != nil {
		c.registry.RecordFailure(c.name, err)
		return
	}
	c.registry.RecordSuccess(c.name)
}

// StatusError is a retryable HTTP status.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("retryable status %d (%s)", e.StatusCode, http.StatusText(e.StatusCode))
}

func retryable(status int) bool {
	return status >= 500 || status == http.StatusTooManyRequests
}

func replayable(req *http.Request) (*http.Request, error) {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return req, nil
	}

	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("buffer request body: %w", err)
	}

	clone := req.Clone(req.Context())
	clone.Body = io.NopCloser(bytes.NewReader(data))
	clone.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return clone, nil
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
