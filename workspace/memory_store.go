package workspace

import (
	"context"
	"sync"
)

// MemoryStore keeps the encoded snapshot in memory. Used by tests and by
// one-shot CLI runs.
type MemoryStore struct {
	mu  sync.Mutex
	raw []byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(ctx context.Context) (*Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Decode(m.raw)
}

func (m *MemoryStore) Save(ctx context.Context, s *Settings) error {
	raw, err := encode(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.raw = raw
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }
func (m *MemoryStore) Close() error                   { return nil }
