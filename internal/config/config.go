// Package config loads the push agent's configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatking/chatking/internal/database"
)

// StoreKind selects the device state backend.
type StoreKind string

// Supported store backends.
const (
	StoreMemory   StoreKind = "memory"
	StoreSQLite   StoreKind = "sqlite"
	StorePostgres StoreKind = "postgres"
)

// Config holds the agent configuration.
type Config struct {
	Env      string
	Port     string
	LogLevel zerolog.Level

	// InstanceID is the push vendor instance. Required.
	InstanceID string

	// BaseURL overrides the vendor host derived from InstanceID.
	BaseURL string

	// BundleIdentifier is reported on registration.
	BundleIdentifier string

	// DeviceToken, when set, is registered on start-up.
	DeviceToken string

	Store      StoreKind
	SQLitePath string
	Database   database.Config

	// AuthURL is the chat server token endpoint. Takes precedence over JWTSecret.
	AuthURL   string
	JWTSecret string
	JWTIssuer string

	HTTPTimeout time.Duration
	MaxRetries  int
	CallTimeout time.Duration

	PubSubProjectID    string
	PubSubSubscription string

	OTelEnabled  bool
	OTelEndpoint string
	SampleRatio  float64
}

// Load reads the configuration from the environment. It does not validate.
func Load() (Config, error) {
	var errs []error

	level, err := zerolog.ParseLevel(getEnvOrDefault("LOG_LEVEL", "info"))
	if err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	httpTimeout, err := time.ParseDuration(getEnvOrDefault("PUSH_HTTP_TIMEOUT", "10s"))
	if err != nil {
		errs = append(errs, fmt.Errorf("PUSH_HTTP_TIMEOUT: %w", err))
	}
	callTimeout, err := time.ParseDuration(getEnvOrDefault("PUSH_CALL_TIMEOUT", "30s"))
	if err != nil {
		errs = append(errs, fmt.Errorf("PUSH_CALL_TIMEOUT: %w", err))
	}
	maxRetries, err := strconv.Atoi(getEnvOrDefault("PUSH_MAX_RETRIES", "3"))
	if err != nil {
		errs = append(errs, fmt.Errorf("PUSH_MAX_RETRIES: %w", err))
	}
	otelEnabled, err := strconv.ParseBool(getEnvOrDefault("OTEL_ENABLED", "false"))
	if err != nil {
		errs = append(errs, fmt.Errorf("OTEL_ENABLED: %w", err))
	}
	sampleRatio, err := strconv.ParseFloat(getEnvOrDefault("OTEL_SAMPLE_RATIO", "1"), 64)
	if err != nil {
		errs = append(errs, fmt.Errorf("OTEL_SAMPLE_RATIO: %w", err))
	}

	store := StoreKind(getEnvOrDefault("PUSH_STORE", string(StoreSQLite)))

	var db database.Config
	if store == StorePostgres {
		db, err = database.ConfigFromEnv()
		if err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	return Config{
		Env:                getEnvOrDefault("APP_ENV", "development"),
		Port:               getEnvOrDefault("APP_PORT", "8080"),
		LogLevel:           level,
		InstanceID:         os.Getenv("PUSH_INSTANCE_ID"),
		BaseURL:            os.Getenv("PUSH_BASE_URL"),
		BundleIdentifier:   getEnvOrDefault("PUSH_BUNDLE_ID", "com.chatking.pushd"),
		DeviceToken:        os.Getenv("PUSH_DEVICE_TOKEN"),
		Store:              store,
		SQLitePath:         getEnvOrDefault("PUSH_SQLITE_PATH", "pushd.db"),
		Database:           db,
		AuthURL:            os.Getenv("PUSH_AUTH_URL"),
		JWTSecret:          os.Getenv("PUSH_JWT_SECRET"),
		JWTIssuer:          os.Getenv("PUSH_JWT_ISSUER"),
		HTTPTimeout:        httpTimeout,
		MaxRetries:         maxRetries,
		CallTimeout:        callTimeout,
		PubSubProjectID:    os.Getenv("PUBSUB_PROJECT_ID"),
		PubSubSubscription: os.Getenv("PUBSUB_SUBSCRIPTION"),
		OTelEnabled:        otelEnabled,
		OTelEndpoint:       getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		SampleRatio:        sampleRatio,
	}, nil
}

// Validate reports every missing or inconsistent value at once.
func (c Config) Validate() error {
	var errs []error

	if c.InstanceID == "" {
		errs = append(errs, errors.New("PUSH_INSTANCE_ID is required"))
	}
	if c.Port == "" {
		errs = append(errs, errors.New("APP_PORT is required"))
	}

	switch c.Store {
	case StoreMemory:
	case StoreSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("PUSH_SQLITE_PATH is required for the sqlite store"))
		}
	case StorePostgres:
		if err := c.Database.Validate(); err != nil {
			errs = append(errs, err)
		}
	default:
		errs = append(errs, fmt.Errorf("PUSH_STORE %q is not one of memory, sqlite, postgres", c.Store))
	}

	if c.HTTPTimeout <= 0 {
		errs = append(errs, errors.New("PUSH_HTTP_TIMEOUT must be positive"))
	}
	if c.CallTimeout <= 0 {
		errs = append(errs, errors.New("PUSH_CALL_TIMEOUT must be positive"))
	}
	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		errs = append(errs, fmt.Errorf("PUSH_MAX_RETRIES %d must be between 0 and 10", c.MaxRetries))
	}
	if c.PubSubSubscription != "" && c.PubSubProjectID == "" {
		errs = append(errs, errors.New("PUBSUB_PROJECT_ID is required when PUBSUB_SUBSCRIPTION is set"))
	}
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("OTEL_SAMPLE_RATIO %g must be between 0 and 1", c.SampleRatio))
	}

	return errors.Join(errs...)
}

// IsProduction reports whether APP_ENV is production.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// PubSubEnabled reports whether the command consumer should run.
func (c Config) PubSubEnabled() bool {
	return c.PubSubSubscription != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
