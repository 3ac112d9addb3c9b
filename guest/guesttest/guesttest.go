// Package guesttest runs guest code natively against the real capability
// bindings, so guest handlers can be tested without a wasm runtime.
//
// The Host lays data out in an abi.Buffer exactly as the runtime would:
// the body at abi.BodyOffset, the result header at abi.ResultHeaderOffset
// and read results in the tail of the region.
package guesttest

import (
	"context"
	"errors"
	"fmt"

	"github.com/reglet-dev/kvrunner/domain/ports"
	"github.com/reglet-dev/kvrunner/guest"
	"github.com/reglet-dev/kvrunner/hostfuncs"
	"github.com/reglet-dev/kvrunner/internal/abi"
)

// heapStart is where the simulated guest places its own buffers. It leaves
// the low region to the body, as a Go guest does.
const heapStart = 4096

// Option configures a Host.
type Option func(*Host)

// WithPages sets the size of the simulated memory (default: 4 pages).
func WithPages(pages uint32) Option {
	return func(h *Host) {
		h.pages = pages
	}
}

// WithBindingsOptions passes options through to the capability bindings.
func WithBindingsOptions(opts ...hostfuncs.BindingsOption) Option {
	return func(h *Host) {
		h.bindingOpts = append(h.bindingOpts, opts...)
	}
}

// Host implements guest.Host over an in-process memory region and a store.
type Host struct {
	ctx         context.Context
	mem         *abi.Buffer
	bindings    *hostfuncs.KVBindings
	bindingOpts []hostfuncs.BindingsOption
	pages       uint32
	next        uint32
}

var _ guest.Host = (*Host)(nil)

// New returns a Host whose capability calls go to store.
func New(store ports.KVStore, opts ...Option) *Host {
	h := &Host{ctx: context.Background(), pages: 4}
	for _, opt := range opts {
		opt(h)
	}
	h.mem = abi.NewBuffer(h.pages)
	h.bindings = hostfuncs.NewKVBindings(store, h.bindingOpts...)
	h.next = heapStart
	return h
}

// Call runs entry the way the runtime drives the entry export and returns
// the response. A capability failure or a panic inside entry is returned as
// an error, mirroring a trap.
func (h *Host) Call(body []byte, entry func(resultHeader, bodyOffset, bodyLength uint32)) (result []byte, err error) {
	restore := guest.UseHost(h)
	defer restore()

	if err := abi.WriteAt(h.mem, abi.BodyOffset, body); err != nil {
		return nil, err
	}
	if end := abi.BodyOffset + uint32(len(body)); end > h.next { //nolint:gosec // G115: bounded by WriteAt
		h.next = end
	}

	defer func() {
		if r := recover(); r != nil {
			if fault := h.bindings.Fault(); fault != nil {
				err = fault
				return
			}
			if e, ok := r.(error); ok {
				err = e
				return
			}
			err = fmt.Errorf("guest panicked: %v", r)
		}
	}()

	entry(abi.ResultHeaderOffset, abi.BodyOffset, uint32(len(body))) //nolint:gosec // G115: bounded by WriteAt

	header, err := abi.ReadHeader(h.mem, abi.ResultHeaderOffset)
	if err != nil {
		return nil, err
	}
	return abi.Copy(h.mem, header)
}

// Stats returns the capability call counters.
func (h *Host) Stats() hostfuncs.Stats {
	return h.bindings.Stats()
}

// Memory exposes the simulated region for assertions.
func (h *Host) Memory() *abi.Buffer {
	return h.mem
}

// WriteKey implements guest.Host.
func (h *Host) WriteKey(key, value []byte) {
	k := h.place(key)
	v := h.place(value)
	if err := h.bindings.WriteKey(h.ctx, h.mem, k, v); err != nil {
		panic(err)
	}
}

// ReadKey implements guest.Host.
func (h *Host) ReadKey(key []byte) []byte {
	header := h.alloc(abi.HeaderSize)
	if err := h.bindings.ReadKey(h.ctx, h.mem, header, h.place(key)); err != nil {
		panic(err)
	}
	handle, err := abi.ReadHeader(h.mem, header)
	if err != nil {
		panic(err)
	}
	value, err := abi.View(h.mem, handle)
	if err != nil {
		panic(err)
	}
	return value
}

// Body implements guest.Host.
func (h *Host) Body(offset, length uint32) []byte {
	body, err := abi.View(h.mem, abi.Handle{Offset: offset, Length: length})
	if err != nil {
		panic(err)
	}
	return body
}

// Respond implements guest.Host.
func (h *Host) Respond(resultHeader uint32, response []byte) {
	if err := abi.WriteHeader(h.mem, resultHeader, h.place(response)); err != nil {
		panic(err)
	}
}

var errOutOfMemory = errors.New("guesttest: simulated guest heap exhausted")

// alloc reserves n bytes of guest heap, growing the region when needed.
func (h *Host) alloc(n uint32) uint32 {
	off := h.next
	for uint64(off)+uint64(n) > uint64(h.mem.Size()) {
		if _, ok := h.mem.Grow(1); !ok {
			panic(errOutOfMemory)
		}
	}
	h.next = off + n
	return off
}

// place copies p into guest heap and returns its handle.
func (h *Host) place(p []byte) abi.Handle {
	if len(p) == 0 {
		return abi.Handle{}
	}
	off := h.alloc(uint32(len(p))) //nolint:gosec // G115: bounded by alloc
	if err := abi.WriteAt(h.mem, off, p); err != nil {
		panic(err)
	}
	return abi.Handle{Offset: off, Length: uint32(len(p))} //nolint:gosec // G115: bounded by alloc
}
