// Package main provides the entrypoint for the ChatKing push device agent.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/chatking/chatking/internal/api"
	"github.com/chatking/chatking/internal/api/middleware"
	"github.com/chatking/chatking/internal/auth"
	"github.com/chatking/chatking/internal/config"
	"github.com/chatking/chatking/internal/database"
	"github.com/chatking/chatking/internal/device"
	"github.com/chatking/chatking/internal/featureflags"
	"github.com/chatking/chatking/internal/provider/resilience"
	"github.com/chatking/chatking/internal/push"
	"github.com/chatking/chatking/internal/pushapi"
	"github.com/chatking/chatking/internal/telemetry"
	"github.com/chatking/chatking/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "chatking-pushd"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	cfg, err := config.Load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	log = log.Level(cfg.LogLevel).With().Str("instance_id", cfg.InstanceID).Logger()

	log.Info().
		Str("build_time", BuildTime).
		Str("store", string(cfg.Store)).
		Msg("starting ChatKing push agent")

	ctx := context.Background()

	// Initialize OpenTelemetry
	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTelEndpoint,
		Enabled:        cfg.OTelEnabled,
		SampleRatio:    cfg.SampleRatio,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.OTelEnabled {
		log.Info().
			Str("otlp_endpoint", cfg.OTelEndpoint).
			Msg("OpenTelemetry initialized")
	}

	httpMetrics, err := middleware.NewMetrics(tp.Meter)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize http metrics")
	}
	pushMetrics, err := telemetry.NewPushMetrics(tp.Meter)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize push metrics")
	}

	// Device state and feature flags
	storage, err := openBackend(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer storage.Close()

	ffService := featureflags.NewService(featureflags.ServiceConfig{
		Repository: storage.flags,
		Logger:     log,
		CacheTTL:   1 * time.Minute,
	})

	// Vendor transport
	registry := resilience.NewRegistry()
	vendorConfig := resilience.DefaultConfig(pushapi.ProviderName)
	vendorConfig.Timeout = cfg.HTTPTimeout
	vendorConfig.MaxRetries = uint64(cfg.MaxRetries) //nolint:gosec // validated to 0..10
	vendorConfig.Registry = registry
	vendorConfig.Logger = log

	network := pushapi.NewClient(pushapi.ClientConfig{
		BaseURL:          cfg.BaseURL,
		BundleIdentifier: cfg.BundleIdentifier,
		HTTPClient:       resilience.NewClient(vendorConfig),
		Logger:           log,
	})

	tokenProvider, tokenValidator, err := newTokenSource(cfg, registry, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize token provider")
	}

	pushClient, err := push.New(ctx, push.Config{
		Store:   device.NewStore(storage.repo, cfg.InstanceID),
		Network: network,
		Logger:  log,
		Metrics: pushMetrics,
		Flags:   ffService,
		Metadata: push.Metadata{
			SDKVersion: Version,
			OSName:     runtime.GOOS,
			OSVersion:  runtime.GOARCH,
			AppVersion: Version,
		},
		Delegate: push.DelegateFunc(func(interests []string) {
			log.Info().Strs("interests", interests).Msg("interest set changed")
		}),
		CallTimeout: cfg.CallTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create push client")
	}

	if err := pushClient.Start(ctx, cfg.InstanceID, tokenProvider); err != nil {
		log.Fatal().Err(err).Msg("failed to start push client")
	}
	if cfg.DeviceToken != "" {
		pushClient.RegisterDeviceToken(cfg.DeviceToken, func(err error) {
			if err != nil {
				log.Error().Err(err).Msg("device registration failed")
				return
			}
			log.Info().Msg("device registered")
		})
	}

	// Optional Pub/Sub command consumer
	consumerCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()

	var consumer *worker.PubSubHandler
	if cfg.PubSubEnabled() {
		consumerConfig := worker.DefaultConsumerConfig()
		consumerConfig.ProjectID = cfg.PubSubProjectID
		consumerConfig.SubscriptionName = cfg.PubSubSubscription

		consumer, err = worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			Consumer:   consumerConfig,
			PushClient: pushClient,
			Logger:     log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub consumer")
		}
		go func() {
			if err := consumer.Start(consumerCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("pubsub consumer stopped")
			}
		}()
	}

	routerConfig := api.RouterConfig{
		Version:    Version,
		BuildTime:  BuildTime,
		Logger:     log,
		Metrics:    httpMetrics,
		PushClient: pushClient,
		Providers:  registry,
		Flags:      ffService,
		RequireTLS: cfg.IsProduction(),
	}
	if tokenValidator != nil {
		routerConfig.TokenValidator = tokenValidator
	} else {
		log.Warn().Msg("PUSH_JWT_SECRET not set - control API is unauthenticated")
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewRouter(routerConfig),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("control API listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	stopConsumer()
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close pubsub client")
		}
	}

	if err := pushClient.Flush(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("pending push operations abandoned")
	}
	pushClient.Close()

	log.Info().Msg("push agent stopped")
}

// backend bundles the device repository and the flag repository of one store kind.
type backend struct {
	repo  device.Repository
	flags featureflags.Repository
	close func()
}

func (b *backend) Close() {
	if b.close != nil {
		b.close()
	}
}

func openBackend(ctx context.Context, cfg config.Config, log zerolog.Logger) (*backend, error) {
	switch cfg.Store {
	case config.StoreMemory:
		log.Warn().Msg("using in-memory store - device state is lost on restart")
		return &backend{
			repo:  device.NewInMemoryRepository(),
			flags: featureflags.NewInMemoryRepository(),
		}, nil

	case config.StoreSQLite:
		repo, err := device.OpenSQLiteRepository(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", cfg.SQLitePath).Msg("sqlite store opened")
		return &backend{
			repo:  repo,
			flags: featureflags.NewInMemoryRepository(),
			close: func() {
				if err := repo.Close(); err != nil {
					log.Error().Err(err).Msg("failed to close sqlite store")
				}
			},
		}, nil

	case config.StorePostgres:
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		log.Info().
			Str("host", cfg.Database.Host).
			Int("port", cfg.Database.Port).
			Str("database", cfg.Database.Database).
			Msg("database connected")

		b, err := migratePostgres(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return b, nil

	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

func migratePostgres(ctx context.Context, pool *pgxpool.Pool) (*backend, error) {
	repo := device.NewPostgresRepository(pool)
	if err := repo.Migrate(ctx); err != nil {
		return nil, err
	}
	flags := featureflags.NewPostgresRepository(pool)
	if err := flags.Migrate(ctx); err != nil {
		return nil, err
	}
	return &backend{repo: repo, flags: flags, close: pool.Close}, nil
}

// newTokenSource picks the token provider handed to the push client and the
// validator guarding the control API. The chat server endpoint wins over a
// local secret; either may be nil.
func newTokenSource(cfg config.Config, registry *resilience.Registry, log zerolog.Logger) (push.TokenProvider, *auth.JWTTokenProvider, error) {
	var jwtProvider *auth.JWTTokenProvider
	if cfg.JWTSecret != "" {
		p, err := auth.NewJWTTokenProvider(auth.JWTConfig{
			Secret:     cfg.JWTSecret,
			Issuer:     cfg.JWTIssuer,
			InstanceID: cfg.InstanceID,
		})
		if err != nil {
			return nil, nil, err
		}
		jwtProvider = p
	}

	if cfg.AuthURL != "" {
		authConfig := resilience.DefaultConfig("chat-auth")
		authConfig.Timeout = cfg.HTTPTimeout
		authConfig.Registry = registry
		authConfig.Logger = log

		log.Info().Str("auth_url", cfg.AuthURL).Msg("using chat server token provider")
		return auth.NewHTTPTokenProvider(auth.HTTPConfig{
			AuthURL:    cfg.AuthURL,
			HTTPClient: resilience.NewClient(authConfig),
		}), jwtProvider, nil
	}

	if jwtProvider != nil {
		log.Info().Msg("using local JWT token provider")
		return jwtProvider, jwtProvider, nil
	}

	log.Warn().Msg("no token provider configured - SetUserID is unavailable")
	return nil, nil, nil
}
