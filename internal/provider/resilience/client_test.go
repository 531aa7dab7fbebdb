package resilience_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatking/chatking/internal/provider/resilience"
)

func fastConfig(name string, retries uint64) resilience.Config {
	breaker := resilience.DefaultBreakerConfig(name)
	breaker.ConsecutiveFailures = 100
	breaker.MinRequests = 100
	return resilience.Config{
		Name:            name,
		Timeout:         2 * time.Second,
		MaxRetries:      retries,
		InitialInterval: 5 * time.Millisecond,
		MaxInterval:     20 * time.Millisecond,
		Breaker:         &breaker,
	}
}

func get(t *testing.T, client *resilience.Client, url string) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, http.NoBody)
	require.NoError(t, err)
	return client.Do(req)
}

func TestClient_SuccessfulRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":"dev-1"}`))
	}))
	defer server.Close()

	client := resilience.NewClient(resilience.DefaultConfig("vendor"))

	resp, err := get(t, client, server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"id":"dev-1"}`, string(body))
}

func TestClient_RetriesRetryableStatuses(t *testing.T) {
	for _, status := range []int{http.StatusServiceUnavailable, http.StatusTooManyRequests} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			var attempts atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				if attempts.Add(1) < 3 {
					w.WriteHeader(status)
					return
				}
				w.WriteHeader(http.StatusNoContent)
			}))
			defer server.Close()

			client := resilience.NewClient(fastConfig("retry", 5))

			resp, err := get(t, client, server.URL)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusNoContent, resp.StatusCode)
			assert.Equal(t, int32(3), attempts.Load())
		})
	}
}

func TestClient_ReplaysBodyOnRetry(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(data))
		n := len(bodies)
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := resilience.NewClient(fastConfig("replay", 2))

	// A plain reader leaves GetBody unset.
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPut, server.URL,
		io.NopCloser(strings.NewReader(`{"interests":["news"]}`)))
	require.NoError(t, err)
	require.Nil(t, req.GetBody)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 2)
	assert.Equal(t, bodies[0], bodies[1])
	assert.JSONEq(t, `{"interests":["news"]}`, bodies[1])
}

func TestClient_ExhaustedRetriesReturnLastResponse(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	registry := resilience.NewRegistry()
	cfg := fastConfig("exhaust", 2)
	cfg.Registry = registry
	client := resilience.NewClient(cfg)

	resp, err := get(t, client, server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, int32(3), attempts.Load())

	health, ok := registry.Health("exhaust")
	require.True(t, ok)
	assert.NotNil(t, health.LastFailureAt)
	assert.Contains(t, health.LastError, "500")
}

func TestClient_4xxNotRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := resilience.NewClient(fastConfig("4xx", 3))

	resp, err := get(t, client, server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestClient_CircuitBreakerTrips(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	breaker := resilience.BreakerConfig{
		Name:                "trip",
		Timeout:             time.Minute,
		ConsecutiveFailures: 3,
	}
	cfg := fastConfig("trip", 0)
	cfg.Breaker = &breaker
	client := resilience.NewClient(cfg)

	for i := 0; i < 3; i++ {
		resp, _ := get(t, client, server.URL)
		if resp != nil {
			resp.Body.Close()
		}
	}
	assert.Equal(t, gobreaker.StateOpen, client.State())

	resp, err := get(t, client, server.URL)
	if resp != nil {
		resp.Body.Close()
	}
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(3), attempts.Load(), "open breaker must not reach the server")
}

func TestClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := fastConfig("timeout", 0)
	cfg.Timeout = 50 * time.Millisecond
	client := resilience.NewClient(cfg)

	resp, err := get(t, client, server.URL)
	if resp != nil {
		resp.Body.Close()
	}
	assert.Error(t, err)
}

func TestClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := resilience.NewClient(resilience.DefaultConfig("cancel"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(req)
	if resp != nil {
		resp.Body.Close()
	}
	assert.Error(t, err)
}

func TestBreakerConfig_ReadyToTrip(t *testing.T) {
	cfg := resilience.DefaultBreakerConfig("vendor")

	tests := []struct {
		name     string
		counts   gobreaker.Counts
		expected bool
	}{
		{"quiet", gobreaker.Counts{}, false},
		{"few failures in a row", gobreaker.Counts{Requests: 4, TotalFailures: 4, ConsecutiveFailures: 4}, false},
		{"five failures in a row", gobreaker.Counts{Requests: 5, TotalFailures: 5, ConsecutiveFailures: 5}, true},
		{"low failure ratio", gobreaker.Counts{Requests: 10, TotalFailures: 4, ConsecutiveFailures: 1}, false},
		{"high failure ratio", gobreaker.Counts{Requests: 10, TotalFailures: 5, ConsecutiveFailures: 1}, true},
		{"ratio below minimum requests", gobreaker.Counts{Requests: 8, TotalFailures: 4, ConsecutiveFailures: 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, cfg.ReadyToTrip(tt.counts))
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := resilience.DefaultConfig("vendor")

	assert.Equal(t, "vendor", cfg.Name)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, uint64(3), cfg.MaxRetries)
	assert.Equal(t, 200*time.Millisecond, cfg.InitialInterval)
	assert.Equal(t, 5*time.Second, cfg.MaxInterval)
	assert.InDelta(t, 0.5, cfg.RandomizationFactor, 0.0001)
	require.NotNil(t, cfg.Breaker)
	assert.Equal(t, "vendor", cfg.Breaker.Name)
}

func TestStatusError(t *testing.T) {
	err := &resilience.StatusError{StatusCode: http.StatusServiceUnavailable}
	assert.Contains(t, err.Error(), "Service Unavailable")
}
