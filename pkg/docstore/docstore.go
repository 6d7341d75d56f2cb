// Package docstore is the secondary document store that mirrors processed
// certificates and roadmaps.
package docstore

import "context"

type Store interface {
	// Insert adds doc to collection.
	Insert(ctx context.Context, collection string, doc any) error

	// Upsert replaces the single document matching filter, inserting doc
	// when none matches.
	Upsert(ctx context.Context, collection string, filter map[string]any, doc any) error

	Close(ctx context.Context) error
}

// Nop discards every write. Used when no document store is configured.
type Nop struct{}

func (Nop) Insert(context.Context, string, any) error                 { return nil }
func (Nop) Upsert(context.Context, string, map[string]any, any) error { return nil }
func (Nop) Close(context.Context) error                               { return nil }
