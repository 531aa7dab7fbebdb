package featureflags

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ServiceConfig holds configuration for the feature flag service.
type ServiceConfig struct {
	Repository   Repository
	Logger       zerolog.Logger
	CacheTTL     time.Duration // How long to cache flags in memory
	DefaultFlags map[string]*Flag
}

// Service evaluates feature flags with a read-through cache and falls back to
// defaults when the repository has nothing or fails.
type Service struct {
	repo         Repository
	logger       zerolog.Logger
	cacheTTL     time.Duration
	defaultFlags map[string]*Flag

	mu    sync.RWMutex
	cache map[string]cachedFlag
}

type cachedFlag struct {
	flag    *Flag
	expires time.Time
}

// NewService creates a feature flag service.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = time.Minute
	}

	defaultFlags := cfg.DefaultFlags
	if defaultFlags == nil {
		defaultFlags = DefaultFlags()
	}

	repo := cfg.Repository
	if repo == nil {
		repo = NewInMemoryRepository()
	}

	return &Service{
		repo:         repo,
		logger:       cfg.Logger,
		cacheTTL:     cacheTTL,
		defaultFlags: defaultFlags,
		cache:        make(map[string]cachedFlag),
	}
}

// GetFlag returns the flag for key: cached, stored, or default, in that order.
// Returns nil for an unknown key with no default.
func (s *Service) GetFlag(ctx context.Context, key string) *Flag {
	if flag, ok := s.cached(key); ok {
		return flag
	}

	flag, err := s.repo.GetFlag(ctx, key)
	if err == nil {
		s.store(key, flag)
		return flag
	}
	if !errors.Is(err, ErrFlagNotFound) {
		s.logger.Warn().Err(err).Str("flag", key).Msg("failed to get feature flag from repository")
	}

	return s.defaultFlags[key]
}

// GetAllFlags returns defaults overlaid with every stored flag.
func (s *Service) GetAllFlags(ctx context.Context) map[string]*Flag {
	result := make(map[string]*Flag, len(s.defaultFlags))
	for k, v := range s.defaultFlags {
		result[k] = v
	}

	flags, err := s.repo.GetAllFlags(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to get feature flags from repository, using defaults")
		return result
	}
	for k, v := range flags {
		result[k] = v
		s.store(k, v)
	}
	return result
}

// SetFlag stores a flag and refreshes the cache.
func (s *Service) SetFlag(ctx context.Context, flag *Flag) error {
	flag.UpdatedAt = time.Now()
	if err := s.repo.SetFlag(ctx, flag); err != nil {
		return err
	}
	s.store(flag.Key, flag)

	s.logger.Info().Str("flag", flag.Key).Interface("value", flag.Value).Msg("feature flag updated")
	return nil
}

// InvalidateCache drops every cached flag.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]cachedFlag)
}

// IsEnabled reports whether the boolean flag key is on. Unknown flags are off.
func (s *Service) IsEnabled(ctx context.Context, key string) bool {
	return s.GetFlag(ctx, key).BoolValue(false)
}

func (s *Service) cached(key string) (*Flag, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.cache[key]
	if !ok || time.Now().After(entry.expires) {
		return nil, false
	}
	return entry.flag, true
}

func (s *Service) store(key string, flag *Flag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[key] = cachedFlag{flag: flag, expires: time.Now().Add(s.cacheTTL)}
}
