package persistence

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Persister for tests and ephemeral runs.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string][]byte)}
}

// Load returns the saved state for userID.
func (m *MemoryStore) Load(ctx context.Context, userID string) (State, error) {
	m.mu.RLock()
	data, ok := m.states[userID]
	m.mu.RUnlock()

	if !ok {
		return State{}, nil
	}
	return decode(data)
}

// Save stores a copy of state for userID.
func (m *MemoryStore) Save(ctx context.Context, userID string, state State) error {
	data, err := encode(state)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.states[userID] = data
	m.mu.Unlock()
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
