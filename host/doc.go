// Package host runs sandboxed guest modules, one execution instance per request.
//
// An Executor owns the wazero runtime and the capability host module. A
// guest binary is compiled and checked against the host/guest contract once,
// producing a Module; each Module.Run then instantiates a fresh, anonymous
// instance bound to the caller's KVStore, drives it through the entry export
// and copies the result out before the instance is closed.
package host
