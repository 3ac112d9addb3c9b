package ports

import (
	"context"
)

// KVStore is the capability exposed to guest modules: get/put over opaque
// byte keys and values. Implementations must be substitutable without the
// bindings or the orchestrator knowing which backend is in use.
type KVStore interface {
	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key, value []byte) error

	// Get returns the value stored under key. A missing key is reported with
	// found == false and a nil error.
	Get(ctx context.Context, key []byte) (value []byte, found bool, err error)
}

// KVStoreFactory yields the store a single request executes against.
type KVStoreFactory interface {
	// NewStore returns the store for one request.
	NewStore(ctx context.Context) (KVStore, error)
}

// KVStoreFactoryFunc adapts a function to KVStoreFactory.
type KVStoreFactoryFunc func(ctx context.Context) (KVStore, error)

// NewStore implements KVStoreFactory.
func (f KVStoreFactoryFunc) NewStore(ctx context.Context) (KVStore, error) {
	return f(ctx)
}
