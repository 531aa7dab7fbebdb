package featureflags

import (
	"context"
	"errors"
)

// ErrFlagNotFound is returned when a feature flag is not stored.
var ErrFlagNotFound = errors.New("feature flag not found")

// Repository stores feature flags.
type Repository interface {
	GetFlag(ctx context.Context, key string) (*Flag, error)
	GetAllFlags(ctx context.Context) (map[string]*Flag, error)
	SetFlag(ctx context.Context, flag *Flag) error
	DeleteFlag(ctx context.Context, key string) error
}
