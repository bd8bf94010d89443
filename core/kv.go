package core

import "errors"

// ErrKeyNotFound is returned by a KeyValueStore when a key does not exist.
var ErrKeyNotFound = errors.New("key not found")

// UpdateFunc receives the current value of a key (exists == false when absent)
// and returns the value to store. Returning an error aborts the update.
type UpdateFunc func(current string, exists bool) (string, error)

// KeyValueStore is a persistent substrate that only stores strings.
type KeyValueStore interface {
	// Get returns the value stored under key, or ErrKeyNotFound.
	Get(key string) (string, error)
	Set(key, value string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error
	// Keys lists the keys starting with prefix, sorted.
	Keys(prefix string) ([]string, error)
	// Update atomically reads, transforms and writes key.
	// No other Update or Set on the same key interleaves with fn.
	Update(key string, fn UpdateFunc) error
	Close() error
}
