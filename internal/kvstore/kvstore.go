// Package kvstore is the narrow KV collaborator named in the storage
// design: an ordered key→bytes store with named partitions ("trees") and
// atomic single-key insert/get/remove, plus iteration over a partition.
//
// Two engines implement KV: Pebble (default) and Badger (selectable
// alternate). Both multiplex a single on-disk keyspace into named trees by
// prefixing every key with the tree name, laying buckets/objects/users out
// inside one BadgerDB/Pebble instance.
package kvstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key does not exist in the tree.
var ErrNotFound = errors.New("kvstore: key not found")

// KV is the ordered, partitioned key-value store the Catalog is built on.
type KV interface {
	// Put inserts or replaces a single key within tree.
	Put(ctx context.Context, tree, key string, value []byte) error

	// Get returns the value stored at key within tree, or ErrNotFound.
	Get(ctx context.Context, tree, key string) ([]byte, error)

	// Delete removes key within tree. It is not an error to delete an
	// absent key — callers that need existence semantics check first.
	Delete(ctx context.Context, tree, key string) error

	// Iterate calls fn for every (key, value) pair in tree, in key order,
	// stopping early if fn returns an error.
	Iterate(ctx context.Context, tree string, fn func(key string, value []byte) error) error

	// Close releases the underlying database handle.
	Close() error
}
