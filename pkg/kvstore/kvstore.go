// Package kvstore holds flat JSON documents keyed by string, one namespace
// per Store. Update is the atomic read-modify-write primitive.
package kvstore

import (
	"context"
	"encoding/json"
)

// UpdateFunc receives the current value (nil when absent) and returns the
// value to store. Returning an error aborts the update.
type UpdateFunc func(current json.RawMessage) (json.RawMessage, error)

type Store interface {
	// Get returns the raw value for key, or nil when absent.
	Get(ctx context.Context, key string) (json.RawMessage, error)

	// ReadAll returns every key in the namespace.
	ReadAll(ctx context.Context) (map[string]json.RawMessage, error)

	// Put overwrites a single key.
	Put(ctx context.Context, key string, value json.RawMessage) error

	// Update atomically replaces key with fn(current).
	Update(ctx context.Context, key string, fn UpdateFunc) error

	// ReplaceAll swaps the whole namespace for entries.
	ReplaceAll(ctx context.Context, entries map[string]json.RawMessage) error

	Close() error
}
