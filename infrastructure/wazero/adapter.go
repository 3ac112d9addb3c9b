package wazero

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/reglet-dev/kvrunner/hostfuncs"
	"github.com/reglet-dev/kvrunner/internal/abi"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// DefaultModuleName is the import module guests use for the capability functions.
const DefaultModuleName = "env"

// ErrNoBindings is raised when a capability function runs without bindings
// in its context, which means the host invoked the guest incorrectly.
var ErrNoBindings = errors.New("no capability bindings attached to call context")

// Signatures lists the parameter types of every exported capability
// function. None of them return values.
var Signatures = map[string][]api.ValueType{
	hostfuncs.WriteKeyName: {api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32},
	hostfuncs.ReadKeyName:  {api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32},
}

// AdapterConfig holds configuration for the wazero adapter.
type AdapterConfig struct {
	// Logger receives binding failures before they trap the guest.
	Logger *slog.Logger

	// ModuleName is the host module name (default: "env").
	ModuleName string
}

// AdapterOption configures the adapter.
type AdapterOption func(*AdapterConfig)

// WithModuleName sets the host module name (default: "env").
func WithModuleName(name string) AdapterOption {
	return func(c *AdapterConfig) {
		c.ModuleName = name
	}
}

// WithLogger sets the adapter logger.
func WithLogger(l *slog.Logger) AdapterOption {
	return func(c *AdapterConfig) {
		c.Logger = l
	}
}

// defaultAdapterConfig returns the default adapter configuration.
func defaultAdapterConfig() AdapterConfig {
	return AdapterConfig{
		ModuleName: DefaultModuleName,
	}
}

// RegisterWithRuntime instantiates the host module exporting write_key and
// read_key in runtime. It must be called once per runtime, before any guest
// importing these functions is instantiated.
func RegisterWithRuntime(ctx context.Context, runtime wazero.Runtime, opts ...AdapterOption) error {
	cfg := defaultAdapterConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	builder := runtime.NewHostModuleBuilder(cfg.ModuleName)
	builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
			handleWriteKey(ctx, mod, stack, cfg.Logger)
		}), Signatures[hostfuncs.WriteKeyName], nil).
		WithParameterNames("key_base", "key_len", "value_base", "value_len").
		Export(hostfuncs.WriteKeyName)
	builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
			handleReadKey(ctx, mod, stack, cfg.Logger)
		}), Signatures[hostfuncs.ReadKeyName], nil).
		WithParameterNames("result_header_offset", "key_base", "key_len").
		Export(hostfuncs.ReadKeyName)

	if _, err := builder.Instantiate(ctx); err != nil {
		return fmt.Errorf("failed to instantiate host module %q: %w", cfg.ModuleName, err)
	}
	return nil
}

func handleWriteKey(ctx context.Context, mod api.Module, stack []uint64, logger *slog.Logger) {
	b, mem := resolve(ctx, mod, hostfuncs.WriteKeyName)
	key := abi.Handle{Offset: api.DecodeU32(stack[0]), Length: api.DecodeU32(stack[1])}
	value := abi.Handle{Offset: api.DecodeU32(stack[2]), Length: api.DecodeU32(stack[3])}

	if err := b.WriteKey(ctx, mem, key, value); err != nil {
		logger.ErrorContext(ctx, "wazero: host function failed", "function", hostfuncs.WriteKeyName, "error", err)
		panic(err)
	}
}

func handleReadKey(ctx context.Context, mod api.Module, stack []uint64, logger *slog.Logger) {
	b, mem := resolve(ctx, mod, hostfuncs.ReadKeyName)
	headerOffset := api.DecodeU32(stack[0])
	key := abi.Handle{Offset: api.DecodeU32(stack[1]), Length: api.DecodeU32(stack[2])}

	if err := b.ReadKey(ctx, mem, headerOffset, key); err != nil {
		logger.ErrorContext(ctx, "wazero: host function failed", "function", hostfuncs.ReadKeyName, "error", err)
		panic(err)
	}
}

// resolve returns the bindings and the calling module's memory, trapping if
// either is missing.
func resolve(ctx context.Context, mod api.Module, name string) (*hostfuncs.KVBindings, api.Memory) {
	b, ok := BindingsFromContext(ctx)
	if !ok {
		panic(fmt.Errorf("%s: %w", name, ErrNoBindings))
	}
	mem := mod.Memory()
	if mem == nil {
		panic(fmt.Errorf("%s: calling module has no memory", name))
	}
	return b, mem
}
