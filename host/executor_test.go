package host

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	kverrors "github.com/reglet-dev/kvrunner/domain/errors"
	"github.com/reglet-dev/kvrunner/infrastructure/kvstore"
	"github.com/reglet-dev/kvrunner/internal/testmodule"
	"github.com/reglet-dev/kvrunner/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExecutor(t *testing.T, opts ...Option) *Executor {
	t.Helper()
	ctx := context.Background()
	e, err := NewExecutor(ctx, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close(ctx) })
	return e
}

func compile(t *testing.T, e *Executor, wasm []byte) *Module {
	t.Helper()
	m, err := e.Compile(context.Background(), wasm)
	require.NoError(t, err)
	return m
}

func seeded(kv map[string]string) *kvstore.MemoryStore {
	return kvstore.NewSeededMemoryStore(testutil.Seed(kv))
}

func requireStage(t *testing.T, err error, want Stage) {
	t.Helper()
	var execErr *kverrors.ExecutionError
	require.True(t, errors.As(err, &execErr), "error %v is not an ExecutionError", err)
	assert.Equal(t, want, execErr.Stage)
}

func TestNewExecutor(t *testing.T) {
	ctx := context.Background()
	e, err := NewExecutor(ctx)
	assert.NoError(t, err)
	assert.NotNil(t, e)
	if e != nil {
		err := e.Close(ctx)
		assert.NoError(t, err)
	}
}

func TestNewExecutor_WithCompilationCache(t *testing.T) {
	e := newExecutor(t, WithCompilationCacheDir(t.TempDir()), WithWASI(true))
	assert.NotNil(t, e.cache)
	compile(t, e, testmodule.Echo())
}

func TestStage_String(t *testing.T) {
	tests := []struct {
		stage Stage
		want  string
	}{
		{StageIdle, "Idle"},
		{StageCompiled, "Compiled"},
		{StageInstantiated, "Instantiated"},
		{StageBodyWritten, "BodyWritten"},
		{StageInvoked, "Invoked"},
		{StageResultExtracted, "ResultExtracted"},
		{Stage(42), "Unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.stage.String())
	}
}

func TestRun_Scenario(t *testing.T) {
	ctx := context.Background()
	m := compile(t, newExecutor(t), testmodule.KVScenario(""))

	store := seeded(map[string]string{"foo": "bar"})
	result, err := m.Run(ctx, store, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, []byte("bar"), result)

	testutil.RequireValue(t, store, "world", []byte("bar"))
}

func TestRun_ScenarioAbsentKey(t *testing.T) {
	ctx := context.Background()
	m := compile(t, newExecutor(t), testmodule.KVScenario(""))

	store := kvstore.NewMemoryStore()
	result, err := m.Run(ctx, store, []byte("hello"))
	require.NoError(t, err)
	assert.Empty(t, result)

	// world was first set to the body, then overwritten with foo's empty value.
	testutil.RequireValue(t, store, "world", []byte{})
}

func TestRun_EmptyBody(t *testing.T) {
	m := compile(t, newExecutor(t), testmodule.Echo())

	result, err := m.Run(context.Background(), kvstore.NewMemoryStore(), nil)
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestRun_InstancesAreIndependent(t *testing.T) {
	ctx := context.Background()
	m := compile(t, newExecutor(t), testmodule.Echo())

	first, err := m.Run(ctx, kvstore.NewMemoryStore(), []byte("a much longer first body"))
	require.NoError(t, err)
	assert.Equal(t, []byte("a much longer first body"), first)

	second, err := m.Run(ctx, kvstore.NewMemoryStore(), []byte("short"))
	require.NoError(t, err)
	assert.Equal(t, []byte("short"), second)
}

func TestRun_ConstResultNotAffectedByPreviousRun(t *testing.T) {
	ctx := context.Background()
	m := compile(t, newExecutor(t), testmodule.ConstResult(8, 16))

	_, err := m.Run(ctx, kvstore.NewMemoryStore(), []byte("0123456789abcdef"))
	require.NoError(t, err)

	// A fresh instance starts from zeroed memory, so the previous body is gone.
	result, err := m.Run(ctx, kvstore.NewMemoryStore(), nil)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 16), result)
}

func TestRun_StoresAreIsolated(t *testing.T) {
	ctx := context.Background()
	m := compile(t, newExecutor(t), testmodule.KVScenario(""))

	a := seeded(map[string]string{"foo": "from-a"})
	b := kvstore.NewMemoryStore()

	got, err := m.Run(ctx, a, []byte("req-a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("from-a"), got)

	got, err = m.Run(ctx, b, []byte("req-b"))
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 1, b.Len())
}

func TestRun_ReadAfterMemoryGrowth(t *testing.T) {
	m := compile(t, newExecutor(t), testmodule.GrowThenRead())

	result, err := m.Run(context.Background(), seeded(map[string]string{"foo": "bar"}), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("bar"), result)
}

func TestRun_MemoryLimitStopsGrowth(t *testing.T) {
	// memory.grow fails quietly; read_key still hands off at the old tail.
	m := compile(t, newExecutor(t, WithMemoryLimitPages(1)), testmodule.GrowThenRead())

	result, err := m.Run(context.Background(), seeded(map[string]string{"foo": "bar"}), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("bar"), result)
}

func TestRun_LookupBody(t *testing.T) {
	m := compile(t, newExecutor(t), testmodule.LookupBody())

	key := []byte{0x00, 0xff, 0x10}
	store := kvstore.NewSeededMemoryStore(map[string][]byte{string(key): {0xde, 0xad}})
	result, err := m.Run(context.Background(), store, key)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad}, result)
}

func TestRun_BoundaryViolationInCapabilityCall(t *testing.T) {
	m := compile(t, newExecutor(t), testmodule.WriteOutOfBounds())

	store := kvstore.NewMemoryStore()
	_, err := m.Run(context.Background(), store, nil)
	require.Error(t, err)

	assert.True(t, errors.Is(err, kverrors.ErrBoundaryViolation))
	assert.False(t, errors.Is(err, kverrors.ErrGuestTrap))
	requireStage(t, err, StageBodyWritten)
	assert.Equal(t, 0, store.Len())
}

func TestRun_ResultHeaderOutOfBounds(t *testing.T) {
	m := compile(t, newExecutor(t), testmodule.ConstResult(65530, 100))

	result, err := m.Run(context.Background(), kvstore.NewMemoryStore(), nil)
	require.Error(t, err)
	assert.Nil(t, result)

	var be *kverrors.BoundaryError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, uint32(65530), be.Offset)
	assert.Equal(t, uint64(100), be.Length)
	requireStage(t, err, StageInvoked)
}

func TestRun_BodyLargerThanMemory(t *testing.T) {
	m := compile(t, newExecutor(t), testmodule.Echo())

	_, err := m.Run(context.Background(), kvstore.NewMemoryStore(), make([]byte, 70000))
	require.Error(t, err)
	assert.True(t, errors.Is(err, kverrors.ErrBoundaryViolation))
	requireStage(t, err, StageInstantiated)
}

func TestRun_GuestTrap(t *testing.T) {
	m := compile(t, newExecutor(t), testmodule.Trap())

	_, err := m.Run(context.Background(), kvstore.NewMemoryStore(), []byte("x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, kverrors.ErrGuestTrap))
	requireStage(t, err, StageBodyWritten)
}

type failingStore struct{}

func (failingStore) Put(context.Context, []byte, []byte) error {
	return &kverrors.StoreError{Op: "put", Backend: "test", Err: errors.New("unavailable")}
}

func (failingStore) Get(context.Context, []byte) ([]byte, bool, error) {
	return nil, false, &kverrors.StoreError{Op: "get", Backend: "test", Err: errors.New("unavailable")}
}

func TestRun_StoreFailure(t *testing.T) {
	m := compile(t, newExecutor(t), testmodule.KVScenario(""))

	_, err := m.Run(context.Background(), failingStore{}, []byte("hello"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, kverrors.ErrStore))

	var se *kverrors.StoreError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "put", se.Op)
}

func TestRun_Concurrent(t *testing.T) {
	ctx := context.Background()
	m := compile(t, newExecutor(t), testmodule.LookupBody())

	const workers = 16
	var wg sync.WaitGroup
	errs := make([]error, workers)
	results := make([][]byte, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("key-%d", i)
			store := seeded(map[string]string{key: strings.Repeat("v", i+1)})
			results[i], errs[i] = m.Run(ctx, store, []byte(key))
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, []byte(strings.Repeat("v", i+1)), results[i])
	}
}

func TestCompile_ContractViolations(t *testing.T) {
	e := newExecutor(t)

	tests := []struct {
		name   string
		wasm   []byte
		reason string
	}{
		{"not wasm", []byte("definitely not wasm"), "compile"},
		{"missing entry", testmodule.MissingEntry(), `missing export "entry"`},
		{"missing memory", testmodule.MissingMemory(), `missing export "memory"`},
		{"wrong entry signature", testmodule.WrongEntrySignature(), `export "entry" has signature (i32, i32) -> ()`},
		{"foreign import", testmodule.ForeignImport(), "unknown import env.exec_command"},
		{"wrong import signature", testmodule.WrongImportSignature(), "import env.read_key has signature"},
		{"wrong import module", testmodule.KVScenario("kv"), "unknown import kv.write_key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := e.Compile(context.Background(), tt.wasm)
			require.Error(t, err)
			assert.Nil(t, m)
			assert.True(t, errors.Is(err, kverrors.ErrInstantiation))
			assert.Contains(t, err.Error(), tt.reason)
		})
	}
}

func TestCompile_CustomImportModule(t *testing.T) {
	m := compile(t, newExecutor(t, WithImportModule("kv")), testmodule.KVScenario("kv"))

	result, err := m.Run(context.Background(), seeded(map[string]string{"foo": "bar"}), []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, []byte("bar"), result)
}

func TestCompile_NoImports(t *testing.T) {
	m := compile(t, newExecutor(t), testmodule.NoImports())

	result, err := m.Run(context.Background(), kvstore.NewMemoryStore(), []byte("ignored"))
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestCompileFile(t *testing.T) {
	e := newExecutor(t)
	path := filepath.Join(t.TempDir(), "guest.wasm")
	require.NoError(t, os.WriteFile(path, testmodule.Echo(), 0o600))

	m, err := e.CompileFile(context.Background(), path)
	require.NoError(t, err)
	result, err := m.Run(context.Background(), kvstore.NewMemoryStore(), []byte("ping"))
	require.NoError(t, err)
	assert.Equal(t, []byte("ping"), result)
	assert.NoError(t, m.Close(context.Background()))

	_, err = e.CompileFile(context.Background(), filepath.Join(t.TempDir(), "missing.wasm"))
	assert.Error(t, err)
}
