package kvstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/reglet-dev/kvrunner/config"
	"github.com/reglet-dev/kvrunner/domain/ports"
)

// Factory hands out the store each request executes against.
//
// The memory backend yields a fresh, seeded store per request, so nothing is
// shared between requests. Durable backends yield one shared store, which is
// the only source of cross-request state.
type Factory struct {
	shared ports.KVStore
	closer io.Closer
	seed   map[string][]byte
}

// Compile-time interface compliance check
var _ ports.KVStoreFactory = (*Factory)(nil)

// NewFactory builds the factory described by cfg.
func NewFactory(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (*Factory, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		store  ports.KVStore
		closer io.Closer
	)
	switch cfg.Backend {
	case config.BackendMemory:
		seed := make(map[string][]byte, len(cfg.Seed))
		for k, v := range cfg.Seed {
			seed[k] = []byte(v)
		}
		return &Factory{seed: seed}, nil

	case config.BackendDynamoDB:
		client, err := NewDynamoDBClient(ctx, cfg.DynamoDB.Region, cfg.DynamoDB.Endpoint)
		if err != nil {
			return nil, err
		}
		store = NewDynamoDBStore(client, cfg.DynamoDB.Table,
			WithKeyAttribute(cfg.DynamoDB.KeyAttribute),
			WithValueAttribute(cfg.DynamoDB.ValueAttribute),
		)

	case config.BackendSQLite:
		s, err := NewSQLiteStore(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		store, closer = s, s

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}

	middlewares := []Middleware{LoggingMiddleware(logger, cfg.Backend)}
	if cfg.Retry.Attempts > 1 {
		middlewares = append(middlewares, RetryMiddleware(
			WithAttempts(cfg.Retry.Attempts),
			WithBackoff(cfg.Retry.Backoff),
			WithRetryLogger(logger),
		))
	}
	return &Factory{shared: Chain(store, middlewares...), closer: closer}, nil
}

// NewSharedFactory returns a factory that always yields store.
func NewSharedFactory(store ports.KVStore) *Factory {
	return &Factory{shared: store}
}

// NewStore implements ports.KVStoreFactory.
func (f *Factory) NewStore(_ context.Context) (ports.KVStore, error) {
	if f.shared != nil {
		return f.shared, nil
	}
	return NewSeededMemoryStore(f.seed), nil
}

// Close releases the shared backend, if it holds resources.
func (f *Factory) Close() error {
	if f.closer != nil {
		return f.closer.Close()
	}
	return nil
}
