package kvstore

import (
	"context"
	"log/slog"
	"time"

	"github.com/reglet-dev/kvrunner/domain/ports"
)

// Compile-time interface compliance check
var _ ports.KVStore = (*RetryStore)(nil)

// retryConfig holds configuration for the RetryStore.
type retryConfig struct {
	logger   *slog.Logger
	attempts int
	backoff  time.Duration
}

func defaultRetryConfig() retryConfig {
	return retryConfig{
		attempts: 3,
		backoff:  50 * time.Millisecond,
	}
}

// RetryOption configures a RetryStore instance.
type RetryOption func(*retryConfig)

// WithAttempts sets the total number of attempts per call (minimum 1).
func WithAttempts(n int) RetryOption {
	return func(c *retryConfig) {
		if n < 1 {
			n = 1
		}
		c.attempts = n
	}
}

// WithBackoff sets the fixed delay between attempts.
func WithBackoff(d time.Duration) RetryOption {
	return func(c *retryConfig) {
		c.backoff = d
	}
}

// WithRetryLogger sets the logger used to report retried failures.
func WithRetryLogger(l *slog.Logger) RetryOption {
	return func(c *retryConfig) {
		c.logger = l
	}
}

// RetryStore retries failed calls on the wrapped store. A call that still
// fails after the last attempt returns the last error unchanged, so the
// decorator does not alter the KVStore contract.
type RetryStore struct {
	next   ports.KVStore
	config retryConfig
}

// NewRetryStore wraps next with retries.
func NewRetryStore(next ports.KVStore, opts ...RetryOption) *RetryStore {
	cfg := defaultRetryConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	return &RetryStore{next: next, config: cfg}
}

// Put implements ports.KVStore.
func (s *RetryStore) Put(ctx context.Context, key, value []byte) error {
	return s.do(ctx, "put", func() error {
		return s.next.Put(ctx, key, value)
	})
}

// Get implements ports.KVStore.
func (s *RetryStore) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	var (
		value []byte
		found bool
	)
	err := s.do(ctx, "get", func() error {
		var err error
		value, found, err = s.next.Get(ctx, key)
		return err
	})
	return value, found, err
}

func (s *RetryStore) do(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= s.config.attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == s.config.attempts {
			break
		}
		s.config.logger.WarnContext(ctx, "kvstore: retrying failed call",
			"op", op, "attempt", attempt, "error", err)

		timer := time.NewTimer(s.config.backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}
