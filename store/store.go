package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates no live entry exists for the given key.
	ErrNotFound = errors.New("store entry not found")
)

// Store defines the contract for the short-lived key-value correlation store.
// Implementations must be safe for concurrent use; Take and PutIfAbsent must be atomic per key.
type Store interface {
	// Put inserts or replaces a value. A non-positive ttl means no expiry.
	Put(ctx context.Context, key, value string, ttl time.Duration) error

	// PutIfAbsent inserts a value only when the key holds no live entry.
	// It returns false when the key already exists.
	PutIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Get retrieves a value. Returns ErrNotFound if missing or expired.
	Get(ctx context.Context, key string) (string, error)

	// Take retrieves and deletes a value in one step. Returns ErrNotFound if missing or expired.
	Take(ctx context.Context, key string) (string, error)

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
