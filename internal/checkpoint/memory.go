package checkpoint

import (
	"context"
	"sync"
)

type memoryKey struct {
	container string
	key       string
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[memoryKey]Index
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[memoryKey]Index)}
}

func (m *MemoryStore) Persist(ctx context.Context, container, key string, idx Index) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[memoryKey{container, key}] = prepared(idx)
	return nil
}

func (m *MemoryStore) Read(ctx context.Context, container, key string) (*Index, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.entries[memoryKey{container, key}]
	if !ok {
		return nil, false, nil
	}
	out := idx
	out.Status = idx.Status.Clone()
	return &out, true, nil
}

func (m *MemoryStore) Delete(ctx context.Context, container, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, memoryKey{container, key})
	return nil
}

// Len returns the number of stored indexes.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *MemoryStore) Close() error { return nil }
