package config_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatking/chatking/internal/config"
)

var envKeys = []string{
	"APP_ENV", "APP_PORT", "LOG_LEVEL", "PUSH_INSTANCE_ID", "PUSH_BASE_URL", "PUSH_BUNDLE_ID",
	"PUSH_DEVICE_TOKEN", "PUSH_STORE", "PUSH_SQLITE_PATH", "PUSH_AUTH_URL", "PUSH_JWT_SECRET",
	"PUSH_JWT_ISSUER", "PUSH_HTTP_TIMEOUT", "PUSH_CALL_TIMEOUT", "PUSH_MAX_RETRIES",
	"PUBSUB_PROJECT_ID", "PUBSUB_SUBSCRIPTION", "OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT",
	"OTEL_SAMPLE_RATIO", "DB_HOST", "DB_PORT", "DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, zerolog.InfoLevel, cfg.LogLevel)
	assert.Equal(t, config.StoreSQLite, cfg.Store)
	assert.Equal(t, "pushd.db", cfg.SQLitePath)
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 30*time.Second, cfg.CallTimeout)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.False(t, cfg.OTelEnabled)
	assert.False(t, cfg.PubSubEnabled())
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("PUSH_INSTANCE_ID", "inst-1")
	t.Setenv("PUSH_STORE", "postgres")
	t.Setenv("DB_HOST", "db")
	t.Setenv("PUSH_HTTP_TIMEOUT", "2s")
	t.Setenv("PUSH_MAX_RETRIES", "0")
	t.Setenv("PUBSUB_PROJECT_ID", "proj")
	t.Setenv("PUBSUB_SUBSCRIPTION", "push-commands")
	t.Setenv("OTEL_ENABLED", "true")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "inst-1", cfg.InstanceID)
	assert.Equal(t, config.StorePostgres, cfg.Store)
	assert.Equal(t, "db", cfg.Database.Host)
	assert.Equal(t, 2*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 0, cfg.MaxRetries)
	assert.True(t, cfg.PubSubEnabled())
	assert.True(t, cfg.OTelEnabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_ParseErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("PUSH_HTTP_TIMEOUT", "soon")
	t.Setenv("PUSH_MAX_RETRIES", "many")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PUSH_HTTP_TIMEOUT")
	assert.Contains(t, err.Error(), "PUSH_MAX_RETRIES")
}

func TestValidate(t *testing.T) {
	valid := config.Config{
		Port:        "8080",
		InstanceID:  "inst-1",
		Store:       config.StoreMemory,
		HTTPTimeout: time.Second,
		CallTimeout: time.Second,
		MaxRetries:  3,
		SampleRatio: 1,
	}

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*config.Config) {}},
		{name: "missing instance", mutate: func(c *config.Config) { c.InstanceID = "" }, wantErr: "PUSH_INSTANCE_ID"},
		{name: "unknown store", mutate: func(c *config.Config) { c.Store = "redis" }, wantErr: "PUSH_STORE"},
		{name: "sqlite without path", mutate: func(c *config.Config) { c.Store = config.StoreSQLite }, wantErr: "PUSH_SQLITE_PATH"},
		{name: "postgres without host", mutate: func(c *config.Config) { c.Store = config.StorePostgres }, wantErr: "DB_HOST"},
		{name: "zero timeout", mutate: func(c *config.Config) { c.HTTPTimeout = 0 }, wantErr: "PUSH_HTTP_TIMEOUT"},
		{name: "too many retries", mutate: func(c *config.Config) { c.MaxRetries = 11 }, wantErr: "PUSH_MAX_RETRIES"},
		{name: "subscription without project", mutate: func(c *config.Config) { c.PubSubSubscription = "s" }, wantErr: "PUBSUB_PROJECT_ID"},
		{name: "sample ratio", mutate: func(c *config.Config) { c.SampleRatio = 2 }, wantErr: "OTEL_SAMPLE_RATIO"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
