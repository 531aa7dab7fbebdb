package resilience_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatking/chatking/internal/provider/resilience"
)

func TestRegistry_RegisterOnConstruction(t *testing.T) {
	registry := resilience.NewRegistry()
	cfg := resilience.DefaultConfig("vendor")
	cfg.Registry = registry
	_ = resilience.NewClient(cfg)

	health, ok := registry.Health("vendor")
	require.True(t, ok)
	assert.Equal(t, "vendor", health.Name)
	assert.Equal(t, "closed", health.State)
	assert.True(t, health.Healthy())
	assert.Nil(t, health.LastSuccessAt)
	assert.Nil(t, health.LastFailureAt)

	_, ok = registry.Health("missing")
	assert.False(t, ok)
}

func TestRegistry_RecordsOutcomes(t *testing.T) {
	registry := resilience.NewRegistry()
	cfg := resilience.DefaultConfig("vendor")
	cfg.Registry = registry
	_ = resilience.NewClient(cfg)

	registry.RecordSuccess("vendor")
	registry.RecordFailure("vendor", errors.New("connection refused"))
	registry.RecordSuccess("unknown")

	health, ok := registry.Health("vendor")
	require.True(t, ok)
	assert.NotNil(t, health.LastSuccessAt)
	assert.NotNil(t, health.LastFailureAt)
	assert.Equal(t, "connection refused", health.LastError)
}

func TestRegistry_SuccessfulCallIsRecorded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	registry := resilience.NewRegistry()
	cfg := resilience.DefaultConfig("vendor")
	cfg.Registry = registry
	client := resilience.NewClient(cfg)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodDelete, server.URL, http.NoBody)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	health, ok := registry.Health("vendor")
	require.True(t, ok)
	assert.NotNil(t, health.LastSuccessAt)
	assert.Equal(t, uint32(1), health.Requests)
}

func TestRegistry_AllIsSorted(t *testing.T) {
	registry := resilience.NewRegistry()
	for _, name := range []string{"vendor", "auth", "metadata"} {
		cfg := resilience.DefaultConfig(name)
		cfg.Registry = registry
		_ = resilience.NewClient(cfg)
	}

	all := registry.All()
	require.Len(t, all, 3)
	assert.Equal(t, "auth", all[0].Name)
	assert.Equal(t, "metadata", all[1].Name)
	assert.Equal(t, "vendor", all[2].Name)
}
