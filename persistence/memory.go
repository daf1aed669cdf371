package persistence

import (
	"context"
	"sync"

	"github.com/veritas-eu/orchestrator-core/core"
	"github.com/veritas-eu/orchestrator-core/domain"
)

// MemoryStore is the default in-process Store, used by cmd/veritas-cli and
// by tests. Checkpoints do not survive process restart.
type MemoryStore struct {
	mu            sync.RWMutex
	checkpoints   map[string]*domain.Checkpoint
	interventions map[string][]domain.InterventionEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		checkpoints:   make(map[string]*domain.Checkpoint),
		interventions: make(map[string][]domain.InterventionEntry),
	}
}

func (m *MemoryStore) SaveCheckpoint(ctx context.Context, sessionID string, cp *domain.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[sessionID] = cp
	return nil
}

func (m *MemoryStore) LoadCheckpoint(ctx context.Context, sessionID string) (*domain.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp, ok := m.checkpoints[sessionID]
	if !ok {
		return nil, core.NewCoreErrorWithID("persistence.LoadCheckpoint", core.KindInternal, sessionID, core.ErrInvalidState)
	}
	return cp, nil
}

func (m *MemoryStore) AppendIntervention(ctx context.Context, sessionID string, entry domain.InterventionEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interventions[sessionID] = append(m.interventions[sessionID], entry)
	return nil
}
