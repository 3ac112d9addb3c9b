//go:build wasip1

package guest

import (
	"runtime"
	"unsafe"

	"github.com/reglet-dev/kvrunner/internal/abi"
)

//go:wasmimport env write_key
func writeKey(keyBase, keyLen, valueBase, valueLen uint32)

//go:wasmimport env read_key
func readKey(resultHeader, keyBase, keyLen uint32)

// responseAlign keeps the low byte of a response address at zero. Go
// pointers cannot address byte 0 of linear memory, so a header at offset 0
// is written from byte 1 on; byte 0 of a fresh instance is always zero.
const responseAlign = 256

type wasmHost struct {
	header *[abi.HeaderSize]byte
	// pinned keeps the last response reachable until the instance is closed.
	pinned []byte
}

func platformHost() Host {
	return &wasmHost{header: new([abi.HeaderSize]byte)}
}

func (h *wasmHost) WriteKey(key, value []byte) {
	writeKey(addr(key), uint32(len(key)), addr(value), uint32(len(value))) //nolint:gosec // G115: wasm32 lengths fit
	runtime.KeepAlive(key)
	runtime.KeepAlive(value)
}

func (h *wasmHost) ReadKey(key []byte) []byte {
	readKey(addr(h.header[:]), addr(key), uint32(len(key))) //nolint:gosec // G115: wasm32 lengths fit
	runtime.KeepAlive(key)
	handle := abi.DecodeHeader(*h.header)
	return at(handle.Offset, handle.Length)
}

func (h *wasmHost) Body(offset, length uint32) []byte {
	return at(offset, length)
}

func (h *wasmHost) Respond(resultHeader uint32, response []byte) {
	handle := abi.Handle{}
	if len(response) > 0 {
		buf := make([]byte, len(response)+responseAlign-1)
		skip := (responseAlign - addr(buf)%responseAlign) % responseAlign
		h.pinned = buf[skip : skip+uint32(len(response))] //nolint:gosec // G115: wasm32 lengths fit
		copy(h.pinned, response)
		handle = abi.Handle{Offset: addr(h.pinned), Length: uint32(len(response))} //nolint:gosec // G115: wasm32 lengths fit
	}

	header := abi.EncodeHeader(handle)
	if resultHeader == 0 {
		copy(at(1, abi.HeaderSize-1), header[1:])
		return
	}
	copy(at(resultHeader, abi.HeaderSize), header[:])
}

// addr returns the linear memory offset of p's first byte.
func addr(p []byte) uint32 {
	if len(p) == 0 {
		return 0
	}
	return uint32(uintptr(unsafe.Pointer(unsafe.SliceData(p)))) //nolint:gosec // G115: wasm32 pointers fit
}

// at returns a view of linear memory. offset must be non-zero unless length is.
func at(offset, length uint32) []byte {
	if length == 0 {
		return []byte{}
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(offset))), length) //nolint:govet // linear memory address
}
