package device

import (
	"context"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository.
// State is lost when the process exits; use it for tests and ephemeral agents.
type InMemoryRepository struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewInMemoryRepository creates a new in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		values: make(map[string]string),
	}
}

// Get retrieves the value stored under key.
func (r *InMemoryRepository) Get(_ context.Context, key string) (string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	value, ok := r.values[key]
	return value, ok, nil
}

// Set writes value under key.
func (r *InMemoryRepository) Set(_ context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.values[key] = value
	return nil
}

// Delete removes key.
func (r *InMemoryRepository) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.values, key)
	return nil
}

// Len returns the number of stored keys across all namespaces.
func (r *InMemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.values)
}

var _ Repository = (*InMemoryRepository)(nil)
