// Package kvstore defines the pipelined key-value store contract the
// cache layer is built on, plus the concrete Redis and Bigtable
// implementations backing it.
package kvstore

import "context"

// Store is a key-value backend capable of batching gets and sets into a
// single round trip. Concrete backends (Redis, Bigtable) implement this;
// the cache geocoder never talks to a backend directly.
type Store interface {
	// KeyPrefix is prepended to every key before it is issued to the
	// backend.
	KeyPrefix() string

	NewPipelinedGet() PipelinedGet
	NewPipelinedSet() PipelinedSet
}

// PipelinedGet accumulates keys and executes a single batched GET.
type PipelinedGet interface {
	Add(key string)
	// Execute returns one entry per Add call, in call order. A nil entry
	// means the key was not found. Duplicate keys are allowed and each
	// occurrence is resolved independently.
	Execute(ctx context.Context) ([]*[]byte, error)
}

// PipelinedSet accumulates key/value pairs and executes a single batched
// SET.
type PipelinedSet interface {
	Add(key string, value []byte)
	Execute(ctx context.Context) error
}
