package wazero

import (
	"context"

	"github.com/reglet-dev/kvrunner/hostfuncs"
)

// contextKey is a private type for context keys.
type contextKey struct {
	name string
}

var bindingsKey = &contextKey{name: "kv_bindings"}

// WithBindings attaches the request's capability bindings to ctx. Every
// host function invoked under ctx operates on these bindings.
func WithBindings(ctx context.Context, b *hostfuncs.KVBindings) context.Context {
	return context.WithValue(ctx, bindingsKey, b)
}

// BindingsFromContext retrieves the bindings attached by WithBindings.
func BindingsFromContext(ctx context.Context) (*hostfuncs.KVBindings, bool) {
	b, ok := ctx.Value(bindingsKey).(*hostfuncs.KVBindings)
	return b, ok && b != nil
}
