package configstore

import "context"

// Store is the key-value persistence abstraction the config service is
// built on. Implementations must be safe for concurrent use.
//
// Injecting the store (rather than reaching for a process-wide singleton)
// keeps the at-most-one-default invariant easy to test in isolation.
type Store interface {
	// Get returns the raw value for key. The second return reports
	// whether the key exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set writes the value for key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys returns every key currently in the store.
	Keys(ctx context.Context) ([]string, error)
}
