package host

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	kverrors "github.com/reglet-dev/kvrunner/domain/errors"
	wazeroadapter "github.com/reglet-dev/kvrunner/infrastructure/wazero"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// Executor owns the wazero runtime shared by every compiled module.
type Executor struct {
	runtime wazero.Runtime
	cache   wazero.CompilationCache
	config  executorConfig
}

// NewExecutor creates a runtime and registers the capability host module.
func NewExecutor(ctx context.Context, opts ...Option) (*Executor, error) {
	cfg := defaultExecutorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.importModule == "" {
		cfg.importModule = wazeroadapter.DefaultModuleName
	}

	e := &Executor{config: cfg}

	rc := wazero.NewRuntimeConfig().WithCloseOnContextDone(cfg.closeOnContextDone)
	if cfg.memoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(cfg.memoryLimitPages)
	}
	if cfg.cacheDir != "" {
		cache, err := wazero.NewCompilationCacheWithDir(cfg.cacheDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open compilation cache %q: %w", cfg.cacheDir, err)
		}
		e.cache = cache
		rc = rc.WithCompilationCache(cache)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, rc)
	e.runtime = rt

	if cfg.wasi {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
			_ = e.Close(ctx)
			return nil, fmt.Errorf("failed to instantiate WASI: %w", err)
		}
	}

	if err := wazeroadapter.RegisterWithRuntime(ctx, rt,
		wazeroadapter.WithModuleName(cfg.importModule),
		wazeroadapter.WithLogger(cfg.logger),
	); err != nil {
		_ = e.Close(ctx)
		return nil, fmt.Errorf("failed to register host functions: %w", err)
	}

	return e, nil
}

// Close releases the runtime, every module compiled by it and the
// compilation cache.
func (e *Executor) Close(ctx context.Context) error {
	err := e.runtime.Close(ctx)
	if e.cache != nil {
		if cerr := e.cache.Close(ctx); err == nil {
			err = cerr
		}
	}
	return err
}

// Compile compiles wasm once and verifies it honours the host/guest
// contract. A violation is reported as an InstantiationError.
func (e *Executor) Compile(ctx context.Context, wasm []byte) (*Module, error) {
	compiled, err := e.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return nil, &kverrors.InstantiationError{Reason: "compile", Err: err}
	}
	if err := verifyContract(compiled, e.config.importModule, e.config.wasi); err != nil {
		_ = compiled.Close(ctx)
		return nil, err
	}

	e.config.logger.DebugContext(ctx, "module compiled",
		"exports", len(compiled.ExportedFunctions()),
		"imports", len(compiled.ImportedFunctions()))
	return &Module{executor: e, compiled: compiled}, nil
}

// CompileFile reads and compiles the module at path.
func (e *Executor) CompileFile(ctx context.Context, path string) (*Module, error) {
	wasm, err := os.ReadFile(path) //nolint:gosec // G304: path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("failed to read module: %w", err)
	}
	return e.Compile(ctx, wasm)
}
