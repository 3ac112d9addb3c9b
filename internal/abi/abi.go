// Package abi defines the binary contract between the host and a sandboxed
// guest module.
//
// The contract is a stable ABI. Changing any offset or encoding below breaks
// every guest built against it.
//
// # Buffer handles
//
// A byte range inside guest linear memory is passed as two u32 values: the
// base offset and the length, both counted in bytes from the start of the
// region. A zero-length handle is valid whatever its base.
//
// # Result handoff
//
// The guest has no allocator the host can call, so a host-produced result is
// written into the unused tail of the region at Size()-len(payload), and an
// 8-byte header (offset u32 LE, length u32 LE) is written at an offset the
// guest supplies. The tail offset is computed immediately before the write;
// it is never cached across calls because memory growth moves the tail.
//
// # Entry point layout
//
//	0..3   result offset (u32 LE), written by the guest before returning
//	4..7   result length (u32 LE)
//	8..    request body, written by the host before calling entry
//	tail   scratch area for host-written payloads
//
// The entry export is called as entry(ResultHeaderOffset, BodyOffset, len(body)).
package abi

import (
	"encoding/binary"
)

const (
	// ResultHeaderOffset is where the guest leaves the final result header.
	ResultHeaderOffset uint32 = 0

	// HeaderSize is the size of an (offset, length) header in bytes.
	HeaderSize uint32 = 8

	// BodyOffset is where the host writes the inbound request body.
	BodyOffset uint32 = ResultHeaderOffset + HeaderSize
)

// Handle identifies a byte range inside one guest memory region.
// It is meaningless outside the instance it was issued against.
type Handle struct {
	Offset uint32
	Length uint32
}

// End returns the exclusive end of the range without overflowing.
func (h Handle) End() uint64 {
	return uint64(h.Offset) + uint64(h.Length)
}

// EncodeHeader returns the 8-byte little-endian encoding of h.
func EncodeHeader(h Handle) [HeaderSize]byte {
	var buf [HeaderSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], h.Offset)
	binary.LittleEndian.PutUint32(buf[4:8], h.Length)
	return buf
}

// DecodeHeader decodes an 8-byte little-endian header.
func DecodeHeader(buf [HeaderSize]byte) Handle {
	return Handle{
		Offset: binary.LittleEndian.Uint32(buf[0:4]),
		Length: binary.LittleEndian.Uint32(buf[4:8]),
	}
}
