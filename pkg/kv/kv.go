package kv

import (
	"errors"
	"time"
)

// ErrEmptyKey is returned by stores when asked to write or delete the empty key.
var ErrEmptyKey = errors.New("kv: empty key")

// Store defines the interface for a key-value store.
// Implementations of this interface can be swapped out,
// allowing for different storage backends (e.g., sharded in-memory, instrumented).
type Store interface {
	// Get retrieves the value associated with the given key.
	// Returns the value and true if the key exists and has not expired,
	// or empty string and false if not.
	Get(key string) (string, bool)

	// Set stores a key-value pair that never expires, replacing any previous
	// value and expiry.
	Set(key, value string) error

	// SetWithExpiry stores a key-value pair that becomes absent at expireAt.
	// An expireAt at or before now removes the key instead.
	SetWithExpiry(key, value string, expireAt time.Time) error

	// Delete removes a key from the store.
	// Deleting an absent key is not an error.
	Delete(key string) error
}
