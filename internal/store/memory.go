package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"tillsync/internal/domain"
)

// MemoryStore is an in-process DocumentStore used in tests and as the
// fallback behind the cached store.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]map[string][]byte)}
}

func (m *MemoryStore) Get(ctx context.Context, collection, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	content, ok := m.docs[collection][key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := make([]byte, len(content))
	copy(out, content)
	return out, nil
}

func (m *MemoryStore) Put(ctx context.Context, collection, key string, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.docs[collection] == nil {
		m.docs[collection] = make(map[string][]byte)
	}
	stored := make([]byte, len(content))
	copy(stored, content)
	m.docs[collection][key] = stored
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, collection, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.docs[collection], key)
	return nil
}

func (m *MemoryStore) Keys(ctx context.Context, collection, suffix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for key := range m.docs[collection] {
		if suffix == "" || strings.HasSuffix(key, suffix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
