package wazero

import (
	"context"
	"errors"
	"testing"

	kverrors "github.com/reglet-dev/kvrunner/domain/errors"
	"github.com/reglet-dev/kvrunner/hostfuncs"
	"github.com/reglet-dev/kvrunner/infrastructure/kvstore"
	"github.com/reglet-dev/kvrunner/internal/testmodule"
	"github.com/reglet-dev/kvrunner/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

func TestDefaultAdapterConfig(t *testing.T) {
	cfg := defaultAdapterConfig()

	if cfg.ModuleName != "env" {
		t.Errorf("ModuleName = %q, want %q", cfg.ModuleName, "env")
	}
	if cfg.Logger != nil {
		t.Errorf("Logger = %v, want nil until registration", cfg.Logger)
	}
}

func TestWithModuleName(t *testing.T) {
	cfg := defaultAdapterConfig()
	WithModuleName("custom_module")(&cfg)

	if cfg.ModuleName != "custom_module" {
		t.Errorf("ModuleName = %q, want %q", cfg.ModuleName, "custom_module")
	}
}

func TestSignatures(t *testing.T) {
	assert.Len(t, Signatures[hostfuncs.WriteKeyName], 4)
	assert.Len(t, Signatures[hostfuncs.ReadKeyName], 3)
	for _, params := range Signatures {
		for _, p := range params {
			assert.Equal(t, api.ValueTypeI32, p)
		}
	}
}

func TestBindingsContext(t *testing.T) {
	_, ok := BindingsFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithBindings(context.Background(), nil)
	_, ok = BindingsFromContext(ctx)
	assert.False(t, ok)

	b := hostfuncs.NewKVBindings(kvstore.NewMemoryStore())
	got, ok := BindingsFromContext(WithBindings(context.Background(), b))
	require.True(t, ok)
	assert.Same(t, b, got)
}

func newRuntime(t *testing.T, opts ...AdapterOption) (context.Context, wazero.Runtime) {
	t.Helper()
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	t.Cleanup(func() { _ = r.Close(ctx) })
	require.NoError(t, RegisterWithRuntime(ctx, r, opts...))
	return ctx, r
}

func writeBody(t *testing.T, mod api.Module, body string) {
	t.Helper()
	require.True(t, mod.Memory().Write(8, []byte(body)))
}

func readResult(t *testing.T, mod api.Module) []byte {
	t.Helper()
	off, ok := mod.Memory().ReadUint32Le(0)
	require.True(t, ok)
	length, ok := mod.Memory().ReadUint32Le(4)
	require.True(t, ok)
	buf, ok := mod.Memory().Read(off, length)
	require.True(t, ok)
	return append([]byte(nil), buf...)
}

func TestRegisterWithRuntime_Scenario(t *testing.T) {
	ctx, r := newRuntime(t)

	store := kvstore.NewSeededMemoryStore(map[string][]byte{"foo": []byte("bar")})
	b := hostfuncs.NewKVBindings(store)

	mod, err := r.Instantiate(ctx, testmodule.KVScenario(""))
	require.NoError(t, err)

	writeBody(t, mod, "hello")
	callCtx := WithBindings(ctx, b)
	_, err = mod.ExportedFunction("entry").Call(callCtx, 0, 8, 5)
	require.NoError(t, err)

	assert.Equal(t, []byte("bar"), readResult(t, mod))

	testutil.RequireValue(t, store, "world", []byte("bar"))

	assert.Equal(t, hostfuncs.Stats{Puts: 2, Gets: 1, Hits: 1}, b.Stats())
	assert.NoError(t, b.Fault())
}

func TestRegisterWithRuntime_CustomModuleName(t *testing.T) {
	ctx, r := newRuntime(t, WithModuleName("kv"))

	store := kvstore.NewSeededMemoryStore(map[string][]byte{"foo": []byte("baz")})
	mod, err := r.Instantiate(ctx, testmodule.KVScenario("kv"))
	require.NoError(t, err)

	writeBody(t, mod, "x")
	_, err = mod.ExportedFunction("entry").Call(WithBindings(ctx, hostfuncs.NewKVBindings(store)), 0, 8, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("baz"), readResult(t, mod))
}

func TestRegisterWithRuntime_NoBindingsTraps(t *testing.T) {
	ctx, r := newRuntime(t)

	mod, err := r.Instantiate(ctx, testmodule.KVScenario(""))
	require.NoError(t, err)

	_, err = mod.ExportedFunction("entry").Call(ctx, 0, 8, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrNoBindings.Error())
}

func TestRegisterWithRuntime_BoundaryViolationLatched(t *testing.T) {
	ctx, r := newRuntime(t)

	store := kvstore.NewMemoryStore()
	b := hostfuncs.NewKVBindings(store)
	mod, err := r.Instantiate(ctx, testmodule.WriteOutOfBounds())
	require.NoError(t, err)

	_, err = mod.ExportedFunction("entry").Call(WithBindings(ctx, b), 0, 8, 0)
	require.Error(t, err)

	fault := b.Fault()
	require.Error(t, fault)
	assert.True(t, errors.Is(fault, kverrors.ErrBoundaryViolation))
	assert.Equal(t, 0, store.Len())
	testutil.RequireAbsent(t, store, "")
}

func TestRegisterWithRuntime_ReadAfterGrowth(t *testing.T) {
	ctx, r := newRuntime(t)

	store := kvstore.NewSeededMemoryStore(map[string][]byte{"foo": []byte("bar")})
	mod, err := r.Instantiate(ctx, testmodule.GrowThenRead())
	require.NoError(t, err)

	_, err = mod.ExportedFunction("entry").Call(WithBindings(ctx, hostfuncs.NewKVBindings(store)), 0, 8, 0)
	require.NoError(t, err)

	require.Equal(t, uint32(2*65536), mod.Memory().Size())
	off, ok := mod.Memory().ReadUint32Le(0)
	require.True(t, ok)
	assert.Equal(t, uint32(2*65536-3), off)
	assert.Equal(t, []byte("bar"), readResult(t, mod))
}
