package deadletter

import (
	"context"
	"sync"

	"finqueue/internal/models"
)

// MemoryStore is the in-process fallback used when redis is absent or down.
// Contents do not survive a restart; the sqlite queue remains the durable
// record of dead entries.
type MemoryStore struct {
	mu      sync.Mutex
	entries []models.QueueEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Push(_ context.Context, entry *models.QueueEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append([]models.QueueEntry{*entry}, m.entries...)
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]models.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.QueueEntry(nil), m.entries...), nil
}

func (m *MemoryStore) Remove(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.entries {
		if e.ID == id {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return nil
		}
	}
	return nil
}
