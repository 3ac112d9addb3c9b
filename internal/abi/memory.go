package abi

import (
	kverrors "github.com/reglet-dev/kvrunner/domain/errors"
)

// Memory is the view of a guest linear memory region the host needs.
// wazero's api.Memory satisfies it.
type Memory interface {
	// Size returns the current size of the region in bytes.
	Size() uint32

	// Read returns a view of byteCount bytes at offset, or false if out of range.
	Read(offset, byteCount uint32) ([]byte, bool)

	// Write copies v into the region at offset, or returns false if out of range.
	Write(offset uint32, v []byte) bool
}

// CheckBounds validates that [offset, offset+length) lies within size.
// The sum is computed in 64 bits so it cannot wrap.
func CheckBounds(op string, size, offset uint32, length uint64) error {
	if uint64(offset)+length > uint64(size) {
		return &kverrors.BoundaryError{Op: op, Offset: offset, Length: length, Size: size}
	}
	return nil
}

// View returns the bytes identified by h without copying. The slice aliases
// guest memory and is invalidated by the next guest call or memory growth.
func View(mem Memory, h Handle) ([]byte, error) {
	if h.Length == 0 {
		return []byte{}, nil
	}
	if err := CheckBounds("read", mem.Size(), h.Offset, uint64(h.Length)); err != nil {
		return nil, err
	}
	buf, ok := mem.Read(h.Offset, h.Length)
	if !ok {
		return nil, &kverrors.BoundaryError{Op: "read", Offset: h.Offset, Length: uint64(h.Length), Size: mem.Size()}
	}
	return buf, nil
}

// Copy returns an owned copy of the bytes identified by h.
func Copy(mem Memory, h Handle) ([]byte, error) {
	view, err := View(mem, h)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(view))
	copy(out, view)
	return out, nil
}

// WriteAt writes data at offset after a single bounds check.
func WriteAt(mem Memory, offset uint32, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := CheckBounds("write", mem.Size(), offset, uint64(len(data))); err != nil {
		return err
	}
	if !mem.Write(offset, data) {
		return &kverrors.BoundaryError{Op: "write", Offset: offset, Length: uint64(len(data)), Size: mem.Size()}
	}
	return nil
}

// ReadHeader decodes the (offset, length) header stored at offset.
func ReadHeader(mem Memory, offset uint32) (Handle, error) {
	raw, err := View(mem, Handle{Offset: offset, Length: HeaderSize})
	if err != nil {
		return Handle{}, err
	}
	var buf [HeaderSize]byte
	copy(buf[:], raw)
	return DecodeHeader(buf), nil
}

// WriteHeader encodes h and stores it at offset.
func WriteHeader(mem Memory, offset uint32, h Handle) error {
	buf := EncodeHeader(h)
	return WriteAt(mem, offset, buf[:])
}

// PutTail hands payload to the guest: it is written at the end of the region
// and its handle is recorded at headerOffset. The header location is checked
// before anything is written, so a failed call leaves memory untouched.
func PutTail(mem Memory, headerOffset uint32, payload []byte) (Handle, error) {
	size := mem.Size()
	if err := CheckBounds("write", size, headerOffset, uint64(HeaderSize)); err != nil {
		return Handle{}, err
	}
	if uint64(len(payload)) > uint64(size) {
		return Handle{}, &kverrors.BoundaryError{Op: "write", Offset: 0, Length: uint64(len(payload)), Size: size}
	}

	h := Handle{Offset: size - uint32(len(payload)), Length: uint32(len(payload))} //nolint:gosec // G115: bounded by size above
	if err := WriteAt(mem, h.Offset, payload); err != nil {
		return Handle{}, err
	}
	if err := WriteHeader(mem, headerOffset, h); err != nil {
		return Handle{}, err
	}
	return h, nil
}
