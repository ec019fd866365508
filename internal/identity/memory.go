package identity

import (
	"context"
	"sync"

	"icstask/internal/models"
)

// MemoryStore keeps state for the lifetime of the process only. It is not
// suitable for production: every restart forgets all synced tasks and the
// next pass creates duplicates.
type MemoryStore struct {
	mu  sync.RWMutex
	set models.IdentitySet
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{set: make(models.IdentitySet)}
}

// Load returns a copy of the held set.
func (m *MemoryStore) Load(_ context.Context) (models.IdentitySet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.set.Clone(), nil
}

// Save replaces the held set with a copy of set.
func (m *MemoryStore) Save(_ context.Context, set models.IdentitySet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set = set.Clone()
	return nil
}

// Durable is false: the set dies with the process.
func (m *MemoryStore) Durable() bool { return false }
