package device

import "context"

// Repository is the key/value backend behind a Store.
// Get reports ok=false for keys that were never written; that is not an error.
type Repository interface {
	// Get retrieves the value stored under key.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set writes value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
