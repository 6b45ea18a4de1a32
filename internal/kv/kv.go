// Package kv provides the string-keyed durable store the walk store is built on.
package kv

import (
	"context"
)

// Store is a string-keyed, string-valued durable store.
type Store interface {
	// Get returns the value for key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set durably writes value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}
