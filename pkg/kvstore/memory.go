package kvstore

import (
	"context"
	"sort"
	"sync"
)

// memoryMedium implements Medium using an in-memory map. It is safe for
// concurrent use but offers no durability across process restart; intended
// for tests and ephemeral sessions.
type memoryMedium struct {
	mu         sync.RWMutex
	namespaces map[string]map[string][]byte
}

// NewMemoryMedium creates a new in-memory Medium.
func NewMemoryMedium() Medium {
	return &memoryMedium{
		namespaces: make(map[string]map[string][]byte),
	}
}

// Write stores a copy of the value under the namespace/key pair.
func (m *memoryMedium) Write(_ context.Context, namespace, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ns, ok := m.namespaces[namespace]
	if !ok {
		ns = make(map[string][]byte)
		m.namespaces[namespace] = ns
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	ns[key] = cp
	return nil
}

// Read returns a copy of the stored value, or ErrNotFound.
func (m *memoryMedium) Read(_ context.Context, namespace, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.namespaces[namespace][key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	return cp, nil
}

// Delete removes the namespace/key pair if present.
func (m *memoryMedium) Delete(_ context.Context, namespace, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.namespaces[namespace], key)
	return nil
}

// Keys enumerates the keys in a namespace in sorted order.
func (m *memoryMedium) Keys(_ context.Context, namespace string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ns := m.namespaces[namespace]
	keys := make([]string, 0, len(ns))
	for key := range ns {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}
