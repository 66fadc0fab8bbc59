package state

import (
	"context"
	"sync"
)

// MemoryStore keeps provider stats in process memory. Suitable for tests and
// single-node runs where losing disable status on restart is acceptable.
type MemoryStore struct {
	mu    sync.RWMutex
	stats map[string]Stats
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{stats: make(map[string]Stats)}
}

func (m *MemoryStore) GetProviderStats(ctx context.Context, key string) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats, exists := m.stats[key]
	if !exists {
		return nil, nil
	}
	return &stats, nil
}

func (m *MemoryStore) UpdateProviderStats(ctx context.Context, key string, patch Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.stats[key]
	if patch.Status != nil {
		stats.Status = *patch.Status
	}
	if patch.CallsToday != nil {
		stats.CallsToday = *patch.CallsToday
	}
	if patch.LastResetDate != nil {
		stats.LastResetDate = *patch.LastResetDate
	}
	m.stats[key] = stats
	return nil
}
