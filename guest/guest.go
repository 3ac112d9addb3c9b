// Package guest is the guest-side half of the host/guest contract, for
// modules written in Go and built with GOOS=wasip1 GOARCH=wasm.
//
// A guest exports entry and forwards it to Serve:
//
//	//go:wasmexport entry
//	func entry(resultHeader, bodyOffset, bodyLength uint32) {
//		guest.Serve(resultHeader, bodyOffset, bodyLength, handle)
//	}
//
// Inside the handler, StorePut and StoreGet reach the host's key-value
// capability. Outside wasip1 there is no host; tests attach one with UseHost
// (see package guesttest).
package guest

// Host is the capability surface a guest sees.
type Host interface {
	// WriteKey stores value under key.
	WriteKey(key, value []byte)

	// ReadKey returns the value under key, or an empty slice if absent.
	// The slice is only valid until the next call into the host.
	ReadKey(key []byte) []byte

	// Body returns the request body the host placed in memory.
	Body(offset, length uint32) []byte

	// Respond records response as the result of the current request.
	Respond(resultHeader uint32, response []byte)
}

var current = platformHost()

// UseHost replaces the host for subsequent calls and returns a function
// restoring the previous one.
func UseHost(h Host) (restore func()) {
	prev := current
	current = h
	return func() { current = prev }
}

// StorePut stores value under key. Both are copied by the host before it
// returns.
func StorePut(key, value []byte) {
	current.WriteKey(key, value)
}

// StoreGet looks key up and passes the value (empty if absent) to consume.
// The slice must not be retained after consume returns.
func StoreGet[R any](key []byte, consume func(value []byte) R) R {
	return consume(current.ReadKey(key))
}

// Serve runs handler over the request body and hands its response back to
// the host. It is meant to be called directly from the entry export.
func Serve(resultHeader, bodyOffset, bodyLength uint32, handler func(body []byte) []byte) {
	body := current.Body(bodyOffset, bodyLength)
	current.Respond(resultHeader, handler(body))
}
