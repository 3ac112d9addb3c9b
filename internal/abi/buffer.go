package abi

// PageSize is the WebAssembly page size in bytes.
const PageSize = 65536

// Buffer is an in-process Memory backed by a byte slice. It mirrors the
// semantics of a wasm linear memory (fixed size, explicit page growth) and is
// used to drive the protocol without a runtime.
type Buffer struct {
	data []byte
}

// NewBuffer returns a zeroed Buffer of the given number of pages.
func NewBuffer(pages uint32) *Buffer {
	return &Buffer{data: make([]byte, uint64(pages)*PageSize)}
}

// Size implements Memory.
func (b *Buffer) Size() uint32 {
	return uint32(len(b.data)) //nolint:gosec // G115: bounded by Grow
}

// Read implements Memory.
func (b *Buffer) Read(offset, byteCount uint32) ([]byte, bool) {
	end := uint64(offset) + uint64(byteCount)
	if end > uint64(len(b.data)) {
		return nil, false
	}
	return b.data[offset:end:end], true
}

// Write implements Memory.
func (b *Buffer) Write(offset uint32, v []byte) bool {
	end := uint64(offset) + uint64(len(v))
	if end > uint64(len(b.data)) {
		return false
	}
	copy(b.data[offset:end], v)
	return true
}

// Grow adds delta pages and returns the previous size in pages, like
// memory.grow. It returns false if the result would exceed 4GiB.
func (b *Buffer) Grow(delta uint32) (uint32, bool) {
	prev := uint32(len(b.data) / PageSize) //nolint:gosec // G115: bounded below
	if uint64(prev)+uint64(delta) > 65536 {
		return prev, false
	}
	b.data = append(b.data, make([]byte, uint64(delta)*PageSize)...)
	return prev, true
}
