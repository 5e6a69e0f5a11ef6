package index

import (
	"context"
	"sync"
)

// MemoryIndex is the default index backend: a mutex-guarded map, with no
// durability of its own (the run log is what survives a restart; the
// index starts empty and is not rebuilt from the log).
type MemoryIndex struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{records: make(map[string]Record)}
}

func (m *MemoryIndex) Upsert(ctx context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.UUID] = rec
	return nil
}

func (m *MemoryIndex) Delete(ctx context.Context, uuid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, uuid)
	return nil
}

func (m *MemoryIndex) List(ctx context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	return out, nil
}

func (m *MemoryIndex) Close() error { return nil }
