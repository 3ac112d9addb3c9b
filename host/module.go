package host

import (
	"context"
	"time"

	kverrors "github.com/reglet-dev/kvrunner/domain/errors"
	"github.com/reglet-dev/kvrunner/domain/ports"
	"github.com/reglet-dev/kvrunner/hostfuncs"
	wazeroadapter "github.com/reglet-dev/kvrunner/infrastructure/wazero"
	"github.com/reglet-dev/kvrunner/internal/abi"
	"github.com/tetratelabs/wazero"
)

// Module is a compiled guest that passed contract verification. It is
// immutable and safe for concurrent use; every Run gets its own instance.
type Module struct {
	executor *Executor
	compiled wazero.CompiledModule
}

// Run executes one request against store and returns the guest's result.
//
// The instance is created for this call only and closed before Run returns,
// whatever the outcome. Errors are *kverrors.ExecutionError carrying the last
// stage reached. Nothing is retried.
func (m *Module) Run(ctx context.Context, store ports.KVStore, body []byte) ([]byte, error) {
	logger := m.executor.config.logger
	start := time.Now()
	stage := StageCompiled

	fail := func(err error) ([]byte, error) {
		logger.ErrorContext(ctx, "guest execution failed", "stage", stage, "error", err)
		return nil, &kverrors.ExecutionError{Stage: stage, Err: err}
	}
	advance := func(next Stage) {
		stage = next
		logger.DebugContext(ctx, "stage reached", "stage", stage)
	}

	bindings := hostfuncs.NewKVBindings(store,
		hostfuncs.WithLogger(logger),
		hostfuncs.WithTrace(m.executor.config.trace),
	)
	callCtx := wazeroadapter.WithBindings(ctx, bindings)

	// Anonymous instances let concurrent requests share one runtime. Start
	// functions are disabled so a command-style guest cannot run main.
	modCfg := wazero.NewModuleConfig().WithName("").WithStartFunctions()
	inst, err := m.executor.runtime.InstantiateModule(callCtx, m.compiled, modCfg)
	if err != nil {
		return fail(&kverrors.InstantiationError{Reason: "instantiate", Err: err})
	}
	defer func() {
		_ = inst.Close(context.WithoutCancel(ctx))
	}()

	if init := inst.ExportedFunction("_initialize"); init != nil {
		if _, err := init.Call(callCtx); err != nil {
			return fail(&kverrors.TrapError{Err: err})
		}
	}
	advance(StageInstantiated)

	mem := inst.Memory()
	if err := abi.WriteAt(mem, abi.BodyOffset, body); err != nil {
		return fail(err)
	}
	advance(StageBodyWritten)

	_, err = inst.ExportedFunction(EntryExport).Call(callCtx,
		uint64(abi.ResultHeaderOffset), uint64(abi.BodyOffset), uint64(len(body)))
	if err != nil {
		// A failing capability call reaches us as a trap; report its cause.
		if fault := bindings.Fault(); fault != nil {
			return fail(fault)
		}
		return fail(&kverrors.TrapError{Err: err})
	}
	advance(StageInvoked)

	h, err := abi.ReadHeader(mem, abi.ResultHeaderOffset)
	if err != nil {
		return fail(err)
	}
	result, err := abi.Copy(mem, h)
	if err != nil {
		return fail(err)
	}
	advance(StageResultExtracted)

	stats := bindings.Stats()
	logger.DebugContext(ctx, "guest execution complete",
		"body_bytes", len(body),
		"result_bytes", len(result),
		"puts", stats.Puts,
		"gets", stats.Gets,
		"hits", stats.Hits,
		"duration", time.Since(start))
	return result, nil
}

// Close releases the compiled code. Runs in progress are unaffected.
func (m *Module) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}
