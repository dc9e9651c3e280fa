package identity

import (
	"context"
	"sync"
)

// MemoryStore is an in-process LocalStore.
type MemoryStore struct {
	mu     sync.RWMutex
	items  map[string]Identity
	closed bool
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]Identity)}
}

// Load implements LocalStore.
func (m *MemoryStore) Load(_ context.Context, key string) (Identity, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return Identity{}, false, ErrStoreClosed
	}
	id, ok := m.items[key]
	return id, ok, nil
}

// Save implements LocalStore.
func (m *MemoryStore) Save(_ context.Context, key string, id Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	m.items[key] = id
	return nil
}

// Delete implements LocalStore.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	delete(m.items, key)
	return nil
}

// Close implements LocalStore.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
