package overlay

import (
	"context"
	"sync"

	"github.com/mkoziy/contratos/crmsync/internal/models"
)

// Memory keeps the overlay in process memory.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]models.SoftDelete
}

// NewMemory creates an empty in-memory overlay.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]models.SoftDelete)}
}

func (m *Memory) Hide(_ context.Context, saleID string, snapshot models.RawJSON, reason string) (string, error) {
	entry := newEntry(saleID, snapshot, reason)

	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.entries[saleID]; ok {
		entry.ID = prev.ID
	}
	m.entries[saleID] = *entry
	return entry.ID, nil
}

func (m *Memory) Restore(_ context.Context, saleID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[saleID]
	delete(m.entries, saleID)
	return ok, nil
}

func (m *Memory) HiddenIDs(_ context.Context) (map[string]struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make(map[string]struct{}, len(m.entries))
	for id := range m.entries {
		ids[id] = struct{}{}
	}
	return ids, nil
}

func (m *Memory) IsHidden(_ context.Context, saleID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[saleID]
	return ok, nil
}

func (m *Memory) Get(_ context.Context, saleID string) (*models.SoftDelete, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[saleID]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}
