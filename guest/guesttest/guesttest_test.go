package guesttest

import (
	"bytes"
	"context"
	"errors"
	"testing"

	kverrors "github.com/reglet-dev/kvrunner/domain/errors"
	"github.com/reglet-dev/kvrunner/guest"
	"github.com/reglet-dev/kvrunner/hostfuncs"
	"github.com/reglet-dev/kvrunner/infrastructure/kvstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(handler func([]byte) []byte) func(uint32, uint32, uint32) {
	return func(resultHeader, bodyOffset, bodyLength uint32) {
		guest.Serve(resultHeader, bodyOffset, bodyLength, handler)
	}
}

func TestCall_Echo(t *testing.T) {
	h := New(kvstore.NewMemoryStore())

	result, err := h.Call([]byte("ping"), serve(func(body []byte) []byte { return body }))
	require.NoError(t, err)
	assert.Equal(t, []byte("ping"), result)
}

func TestCall_StoreRoundTrip(t *testing.T) {
	store := kvstore.NewMemoryStore()
	h := New(store)

	result, err := h.Call([]byte("value"), serve(func(body []byte) []byte {
		guest.StorePut([]byte("key"), body)
		return guest.StoreGet([]byte("key"), bytes.Clone)
	}))
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), result)
	assert.Equal(t, hostfuncs.Stats{Puts: 1, Gets: 1, Hits: 1}, h.Stats())

	v, found, err := store.Get(context.Background(), []byte("key"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("value"), v)
}

func TestCall_ReadUsesTail(t *testing.T) {
	store := kvstore.NewSeededMemoryStore(map[string][]byte{"foo": []byte("bar")})
	h := New(store, WithPages(1))

	_, err := h.Call(nil, serve(func([]byte) []byte {
		return guest.StoreGet([]byte("foo"), func(v []byte) []byte {
			tail, ok := h.Memory().Read(h.Memory().Size()-3, 3)
			require.True(t, ok)
			assert.Equal(t, tail, v)
			return nil
		})
	}))
	require.NoError(t, err)
}

func TestCall_GrowsHeap(t *testing.T) {
	store := kvstore.NewMemoryStore()
	h := New(store, WithPages(1))
	big := bytes.Repeat([]byte{0xab}, 70000)

	_, err := h.Call(nil, serve(func([]byte) []byte {
		guest.StorePut([]byte("big"), big)
		return nil
	}))
	require.NoError(t, err)
	assert.Greater(t, h.Memory().Size(), uint32(65536))

	v, found, err := store.Get(context.Background(), []byte("big"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, big, v)
}

type brokenStore struct{}

func (brokenStore) Put(context.Context, []byte, []byte) error {
	return &kverrors.StoreError{Op: "put", Backend: "test", Err: errors.New("down")}
}

func (brokenStore) Get(context.Context, []byte) ([]byte, bool, error) {
	return nil, false, nil
}

func TestCall_StoreFailureSurfaces(t *testing.T) {
	h := New(brokenStore{})

	_, err := h.Call([]byte("x"), serve(func(body []byte) []byte {
		guest.StorePut([]byte("k"), body)
		return body
	}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, kverrors.ErrStore))
}

func TestCall_GuestPanic(t *testing.T) {
	h := New(kvstore.NewMemoryStore())

	_, err := h.Call(nil, serve(func([]byte) []byte { panic("boom") }))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestCall_BodyTooLarge(t *testing.T) {
	h := New(kvstore.NewMemoryStore(), WithPages(1))

	_, err := h.Call(make([]byte, 70000), serve(func(b []byte) []byte { return b }))
	require.Error(t, err)
	assert.True(t, errors.Is(err, kverrors.ErrBoundaryViolation))
}
