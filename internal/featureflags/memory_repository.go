package featureflags

import (
	"context"
	"sync"
	"time"
)

// InMemoryRepository keeps flags in process memory.
type InMemoryRepository struct {
	mu    sync.RWMutex
	flags map[string]Flag
}

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{flags: make(map[string]Flag)}
}

// NewInMemoryRepositoryWithFlags creates a repository holding copies of flags.
func NewInMemoryRepositoryWithFlags(flags map[string]*Flag) *InMemoryRepository {
	repo := NewInMemoryRepository()
	for k, v := range flags {
		repo.flags[k] = *v
	}
	return repo
}

// GetFlag returns a copy of the flag stored under key.
func (r *InMemoryRepository) GetFlag(_ context.Context, key string) (*Flag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	flag, ok := r.flags[key]
	if !ok {
		return nil, ErrFlagNotFound
	}
	return &flag, nil
}

// GetAllFlags returns copies of every stored flag.
func (r *InMemoryRepository) GetAllFlags(_ context.Context) (map[string]*Flag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*Flag, len(r.flags))
	for k, v := range r.flags {
		flag := v
		result[k] = &flag
	}
	return result, nil
}

// SetFlag creates or updates a flag.
func (r *InMemoryRepository) SetFlag(_ context.Context, flag *Flag) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *flag
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = time.Now()
	}
	r.flags[flag.Key] = stored
	return nil
}

// DeleteFlag removes a flag. Deleting a missing flag fails with ErrFlagNotFound.
func (r *InMemoryRepository) DeleteFlag(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.flags[key]; !ok {
		return ErrFlagNotFound
	}
	delete(r.flags, key)
	return nil
}

var _ Repository = (*InMemoryRepository)(nil)
