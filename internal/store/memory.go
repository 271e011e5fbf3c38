// internal/store/memory.go
package store

import (
	"context"
	"sort"
	"sync"

	perrors "citizen-portal/internal/common/errors"
	"citizen-portal/internal/models"
)

type memoryKey struct {
	kind models.Kind
	id   string
}

// MemoryStore keeps records in process. Used by the development config and
// by tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[memoryKey]*models.ApplicationRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[memoryKey]*models.ApplicationRecord)}
}

func (m *MemoryStore) Create(_ context.Context, rec *models.ApplicationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := memoryKey{rec.Kind, rec.ID}
	if _, exists := m.records[key]; exists {
		return perrors.NewInvalidInputError("record " + rec.ID + " already exists")
	}
	m.records[key] = clone(rec)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, kind models.Kind, id string) (*models.ApplicationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[memoryKey{kind, id}]
	if !ok {
		return nil, perrors.NewResourceNotFoundError(string(kind), id)
	}
	return clone(rec), nil
}

func (m *MemoryStore) Update(_ context.Context, rec *models.ApplicationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := memoryKey{rec.Kind, rec.ID}
	if _, ok := m.records[key]; !ok {
		return perrors.NewResourceNotFoundError(string(rec.Kind), rec.ID)
	}
	m.records[key] = clone(rec)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, kind models.Kind, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := memoryKey{kind, id}
	if _, ok := m.records[key]; !ok {
		return perrors.NewResourceNotFoundError(string(kind), id)
	}
	delete(m.records, key)
	return nil
}

func (m *MemoryStore) List(_ context.Context, kind models.Kind) ([]*models.ApplicationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.ApplicationRecord, 0)
	for key, rec := range m.records {
		if key.kind == kind {
			out = append(out, clone(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
