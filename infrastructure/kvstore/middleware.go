package kvstore

import (
	"context"
	"log/slog"
	"time"

	"github.com/reglet-dev/kvrunner/domain/ports"
)

// Middleware wraps a KVStore to add cross-cutting behavior.
// Middleware executes in FIFO order (first listed wraps outermost, onion model).
//
// Example usage:
//
//	store := kvstore.Chain(backend,
//	    kvstore.LoggingMiddleware(logger, "sqlite"),
//	    kvstore.RetryMiddleware(kvstore.WithAttempts(3)),
//	)
type Middleware func(next ports.KVStore) ports.KVStore

// Chain applies middlewares to store. The first middleware sees each call first.
func Chain(store ports.KVStore, middlewares ...Middleware) ports.KVStore {
	for i := len(middlewares) - 1; i >= 0; i-- {
		store = middlewares[i](store)
	}
	return store
}

// RetryMiddleware wraps the store in a RetryStore.
func RetryMiddleware(opts ...RetryOption) Middleware {
	return func(next ports.KVStore) ports.KVStore {
		return NewRetryStore(next, opts...)
	}
}

// LoggingMiddleware logs every store call at debug level, and failures at
// warn level, tagged with backend.
func LoggingMiddleware(logger *slog.Logger, backend string) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next ports.KVStore) ports.KVStore {
		return &loggingStore{next: next, logger: logger.With("backend", backend)}
	}
}

type loggingStore struct {
	next   ports.KVStore
	logger *slog.Logger
}

func (s *loggingStore) Put(ctx context.Context, key, value []byte) error {
	start := time.Now()
	err := s.next.Put(ctx, key, value)
	s.log(ctx, "put", start, err, "key_bytes", len(key), "value_bytes", len(value))
	return err
}

func (s *loggingStore) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	start := time.Now()
	value, found, err := s.next.Get(ctx, key)
	s.log(ctx, "get", start, err, "key_bytes", len(key), "found", found)
	return value, found, err
}

func (s *loggingStore) log(ctx context.Context, op string, start time.Time, err error, attrs ...any) {
	attrs = append(attrs, "op", op, "duration", time.Since(start))
	if err != nil {
		s.logger.WarnContext(ctx, "kvstore: call failed", append(attrs, "error", err)...)
		return
	}
	s.logger.DebugContext(ctx, "kvstore: call", attrs...)
}
