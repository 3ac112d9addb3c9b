// Package testutil provides common test utilities and assertions for store
// and guest tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/reglet-dev/kvrunner/domain/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Seed converts string pairs into the byte-valued map stores are seeded with.
func Seed(kv map[string]string) map[string][]byte {
	out := make(map[string][]byte, len(kv))
	for k, v := range kv {
		out[k] = []byte(v)
	}
	return out
}

// RequireValue asserts that store holds want under key.
func RequireValue(t testing.TB, store ports.KVStore, key string, want []byte, msgAndArgs ...interface{}) {
	t.Helper()

	got, found, err := store.Get(context.Background(), []byte(key))
	require.NoError(t, err, msgAndArgs...)
	require.True(t, found, "key %q should be present", key)
	assert.Equal(t, want, got, msgAndArgs...)
}

// RequireAbsent asserts that store holds nothing under key.
func RequireAbsent(t testing.TB, store ports.KVStore, key string, msgAndArgs ...interface{}) {
	t.Helper()

	_, found, err := store.Get(context.Background(), []byte(key))
	require.NoError(t, err, msgAndArgs...)
	require.False(t, found, "key %q should be absent", key)
}

// AssertDurationWithin asserts that a duration is within a tolerance of an expected value
func AssertDurationWithin(t testing.TB, expected, actual, tolerance time.Duration, msgAndArgs ...interface{}) {
	t.Helper()

	diff := expected - actual
	if diff < 0 {
		diff = -diff
	}

	assert.LessOrEqual(t, diff, tolerance, msgAndArgs...)
}
