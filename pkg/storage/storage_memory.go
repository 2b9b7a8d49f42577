package storage

import (
	"context"
	"sync"
)

// MemoryStore keeps collections in process memory. Entries are copied on the way in and out.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string][]byte
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string][]byte)}
}

func (m *MemoryStore) Load(_ context.Context, collection string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyEntries(m.collections[collection]), nil
}

func (m *MemoryStore) Save(_ context.Context, collection string, entries map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[collection] = copyEntries(entries)
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
