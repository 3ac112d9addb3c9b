package hostfuncs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/reglet-dev/kvrunner/domain/ports"
	"github.com/reglet-dev/kvrunner/internal/abi"
)

// Import names of the capability functions.
const (
	WriteKeyName = "write_key"
	ReadKeyName  = "read_key"
)

// bindingsConfig holds configuration for KVBindings.
type bindingsConfig struct {
	logger *slog.Logger
	trace  bool
}

// BindingsOption configures KVBindings.
type BindingsOption func(*bindingsConfig)

// WithLogger sets the logger used for tracing.
func WithLogger(l *slog.Logger) BindingsOption {
	return func(c *bindingsConfig) {
		c.logger = l
	}
}

// WithTrace logs every key and value (as lossy UTF-8) at debug level.
func WithTrace(enabled bool) BindingsOption {
	return func(c *bindingsConfig) {
		c.trace = enabled
	}
}

// Stats counts capability calls made through one KVBindings.
type Stats struct {
	Puts int
	Gets int
	Hits int
}

// KVBindings implements write_key and read_key for exactly one execution
// instance against exactly one store. It is not shared between requests.
type KVBindings struct {
	store  ports.KVStore
	fault  error
	config bindingsConfig
	stats  Stats
	mu     sync.Mutex
}

// NewKVBindings binds the capability functions to store.
func NewKVBindings(store ports.KVStore, opts ...BindingsOption) *KVBindings {
	cfg := bindingsConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	return &KVBindings{store: store, config: cfg}
}

// WriteKey copies key and value out of guest memory and stores them.
func (b *KVBindings) WriteKey(ctx context.Context, mem abi.Memory, key, value abi.Handle) error {
	k, err := abi.Copy(mem, key)
	if err != nil {
		return b.fail(fmt.Errorf("%s: key: %w", WriteKeyName, err))
	}
	v, err := abi.Copy(mem, value)
	if err != nil {
		return b.fail(fmt.Errorf("%s: value: %w", WriteKeyName, err))
	}

	if b.config.trace {
		b.config.logger.DebugContext(ctx, "writing", "key", lossy(k), "value", lossy(v))
	}
	if err := b.store.Put(ctx, k, v); err != nil {
		return b.fail(fmt.Errorf("%s: %w", WriteKeyName, err))
	}

	b.mu.Lock()
	b.stats.Puts++
	b.mu.Unlock()
	return nil
}

// ReadKey copies key out of guest memory, looks it up, and hands the value
// (empty when absent) back through the tail of guest memory, recording its
// handle at headerOffset.
func (b *KVBindings) ReadKey(ctx context.Context, mem abi.Memory, headerOffset uint32, key abi.Handle) error {
	k, err := abi.Copy(mem, key)
	if err != nil {
		return b.fail(fmt.Errorf("%s: key: %w", ReadKeyName, err))
	}

	v, found, err := b.store.Get(ctx, k)
	if err != nil {
		return b.fail(fmt.Errorf("%s: %w", ReadKeyName, err))
	}
	if !found {
		v = []byte{}
	}

	if b.config.trace {
		b.config.logger.DebugContext(ctx, "reading", "key", lossy(k), "value", lossy(v), "found", found)
	}
	// The tail offset is derived from the size at this moment; the guest may
	// have grown memory since the previous call.
	if _, err := abi.PutTail(mem, headerOffset, v); err != nil {
		return b.fail(fmt.Errorf("%s: result: %w", ReadKeyName, err))
	}

	b.mu.Lock()
	b.stats.Gets++
	if found {
		b.stats.Hits++
	}
	b.mu.Unlock()
	return nil
}

// Fault returns the first error raised by a binding, if any. The runtime
// reports binding failures as traps; Fault recovers the typed cause.
func (b *KVBindings) Fault() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fault
}

// Stats returns a snapshot of the call counters.
func (b *KVBindings) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

func (b *KVBindings) fail(err error) error {
	b.mu.Lock()
	if b.fault == nil {
		b.fault = err
	}
	b.mu.Unlock()
	return err
}

func lossy(p []byte) string {
	return strings.ToValidUTF8(string(p), "�")
}
