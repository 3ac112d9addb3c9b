// Package wazero registers the capability host functions with the wazero
// runtime.
//
// This package bridges the pure Go bindings in hostfuncs with wazero. It
// handles:
//
//   - Exporting write_key and read_key from a host module (default "env")
//   - Decoding i32 (offset, length) arguments into abi.Handle values
//   - Resolving the request's KVBindings from the call context
//   - Turning binding failures into traps that abort the guest
//
// # Basic Usage
//
//	runtime := wazero.NewRuntime(ctx)
//	if err := wazeroadapter.RegisterWithRuntime(ctx, runtime); err != nil {
//	    return err
//	}
//
//	// Per request:
//	bindings := hostfuncs.NewKVBindings(store)
//	callCtx := wazeroadapter.WithBindings(ctx, bindings)
//	mod, err := runtime.InstantiateModule(callCtx, compiled, cfg)
//	_, err = mod.ExportedFunction("entry").Call(callCtx, 0, 8, bodyLen)
//
// One host module serves every instance; isolation comes from each call
// carrying its own bindings in its context.
package wazero
