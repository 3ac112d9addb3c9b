// Package hostfuncs provides pure Go implementations of the capability
// functions imported by guest modules (write_key and read_key).
// These implementations have NO WASM runtime dependencies; they operate on
// an abi.Memory and a ports.KVStore, and any runtime can register them.
package hostfuncs
