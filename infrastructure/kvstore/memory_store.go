package kvstore

import (
	"context"
	"sync"

	"github.com/reglet-dev/kvrunner/domain/ports"
)

// Compile-time interface compliance check
var _ ports.KVStore = (*MemoryStore)(nil)

// MemoryStore is an ephemeral in-process KVStore. Its state lives only as
// long as the value itself.
type MemoryStore struct {
	items map[string][]byte
	mu    sync.RWMutex
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string][]byte)}
}

// NewSeededMemoryStore creates a MemoryStore holding a copy of seed.
func NewSeededMemoryStore(seed map[string][]byte) *MemoryStore {
	s := NewMemoryStore()
	for k, v := range seed {
		s.items[k] = clone(v)
	}
	return s
}

// Put implements ports.KVStore.
func (s *MemoryStore) Put(_ context.Context, key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[string(key)] = clone(value)
	return nil
}

// Get implements ports.KVStore.
func (s *MemoryStore) Get(_ context.Context, key []byte) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[string(key)]
	if !ok {
		return nil, false, nil
	}
	return clone(v), true, nil
}

// Len returns the number of stored keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
