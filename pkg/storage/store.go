package storage

import "context"

// Adapter is the generic key/value persistence interface every vault
// component is built on: the CRDT document log, the blob store, the peer
// registry, and the migration runner all read and write through an Adapter
// rather than depending on a concrete database.
type Adapter interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// List returns all keys with the given prefix, in no particular order.
	List(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Close() error
}
