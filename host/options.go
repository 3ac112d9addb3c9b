package host

import (
	"log/slog"
)

// executorConfig holds configuration for the Executor.
type executorConfig struct {
	logger             *slog.Logger
	importModule       string
	cacheDir           string
	memoryLimitPages   uint32
	wasi               bool
	trace              bool
	closeOnContextDone bool
}

func defaultExecutorConfig() executorConfig {
	return executorConfig{
		importModule:       "env",
		closeOnContextDone: true,
	}
}

// Option defines a functional option for configuring the Executor.
type Option func(*executorConfig)

// WithLogger sets the logger for the executor and its bindings.
func WithLogger(l *slog.Logger) Option {
	return func(c *executorConfig) {
		c.logger = l
	}
}

// WithImportModule sets the module name guests import write_key and
// read_key from (default: "env").
func WithImportModule(name string) Option {
	return func(c *executorConfig) {
		c.importModule = name
	}
}

// WithWASI exposes wasi_snapshot_preview1 to guests. Go guests built for
// wasip1 need it; the sandbox still grants no filesystem, env or args.
func WithWASI(enabled bool) Option {
	return func(c *executorConfig) {
		c.wasi = enabled
	}
}

// WithMemoryLimitPages caps each instance's linear memory, in 64KiB pages.
// Zero keeps the runtime default of 65536 pages.
func WithMemoryLimitPages(pages uint32) Option {
	return func(c *executorConfig) {
		c.memoryLimitPages = pages
	}
}

// WithCompilationCacheDir persists compiled code under dir across restarts.
func WithCompilationCacheDir(dir string) Option {
	return func(c *executorConfig) {
		c.cacheDir = dir
	}
}

// WithTrace logs every key and value passed through the capability functions.
func WithTrace(enabled bool) Option {
	return func(c *executorConfig) {
		c.trace = enabled
	}
}

// WithCloseOnContextDone makes a running guest stop when the request context
// is canceled (default: true).
func WithCloseOnContextDone(enabled bool) Option {
	return func(c *executorConfig) {
		c.closeOnContextDone = enabled
	}
}
