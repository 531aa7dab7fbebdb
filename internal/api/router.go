// Package api provides the local control HTTP API of the push agent.
package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/chatking/chatking/internal/api/handler"
	"github.com/chatking/chatking/internal/api/middleware"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version   string
	BuildTime string
	Logger    zerolog.Logger

	// Metrics records HTTP server metrics. Optional.
	Metrics *middleware.Metrics

	// PushClient is the push client the endpoints drive. Required.
	PushClient handler.PushClient

	// Providers reports upstream circuit health for /v1/ops/status. Optional.
	Providers handler.ProviderHealth

	// Flags backs the feature flag endpoints. Optional; the endpoints are not
	// mounted without it.
	Flags handler.FlagService

	// TokenValidator protects every endpoint except the health check. Without
	// one the API is open, which is only fine on a loopback listener.
	TokenValidator middleware.TokenValidator

	// Wait bounds how long mutations wait for the vendor. Default: handler.DefaultWait.
	Wait time.Duration

	// RequireTLS rejects requests forwarded as plain HTTP.
	RequireTLS bool
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware - order matters
	r.Use(middleware.RequestID) // Generate/propagate request ID first
	r.Use(middleware.Tracing()) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON)

	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.PushClient, cfg.Providers)
	pushHandler := handler.NewPushHandler(cfg.PushClient, cfg.Wait, cfg.Logger)

	readRateLimit := middleware.RateLimitByIP(middleware.ReadRateLimit)
	mutationRateLimit := middleware.RateLimitBySubject(middleware.MutationRateLimit)

	authenticated := func(r chi.Router) {
		if cfg.TokenValidator != nil {
			r.Use(middleware.Auth(cfg.TokenValidator))
		}
	}

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)

			r.Group(func(r chi.Router) {
				authenticated(r)
				r.Use(readRateLimit)
				r.Get("/status", opsHandler.SystemStatus)

				if cfg.Flags != nil {
					flagsHandler := handler.NewFeatureFlagsHandler(cfg.Flags)
					r.Get("/flags", flagsHandler.ListFeatureFlags)
					r.With(middleware.RequireJSON).Put("/flags/{key}", flagsHandler.UpdateFeatureFlag)
					r.Post("/flags/invalidate", flagsHandler.InvalidateCache)
				}
			})
		})

		r.Route("/interests", func(r chi.Router) {
			authenticated(r)
			r.With(readRateLimit).Get("/", pushHandler.ListInterests)

			r.Group(func(r chi.Router) {
				r.Use(mutationRateLimit)
				r.Use(middleware.RequireJSON)
				r.Put("/", pushHandler.SetInterests)
				r.Delete("/", pushHandler.ClearInterests)
				r.Post("/{interest}", pushHandler.AddInterest)
				r.Delete("/{interest}", pushHandler.RemoveInterest)
			})
		})

		r.Group(func(r chi.Router) {
			authenticated(r)
			r.Use(mutationRateLimit)
			r.Use(middleware.RequireJSON)
			r.Post("/device/token", pushHandler.RegisterToken)
			r.Delete("/device", pushHandler.ClearDevice)
			r.Post("/user", pushHandler.SetUser)
		})
	})

	return r
}
