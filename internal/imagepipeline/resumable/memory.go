package resumable

import (
	"context"
	"sync"

	"github.com/ManuGH/imagepipeline/internal/imagepipeline/model"
)

// memoryStore is an in-process fallback for deployments without a SQLite
// data directory configured (tests, ephemeral daemons).
type memoryStore struct {
	mu   sync.RWMutex
	data map[string]model.ResumableState
}

// NewMemoryStore creates a Store backed by a plain map. State does not
// survive process restart.
func NewMemoryStore() Store {
	return &memoryStore{data: make(map[string]model.ResumableState)}
}

func (m *memoryStore) Get(_ context.Context, url string) (model.ResumableState, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.data[url]
	return state, ok, nil
}

func (m *memoryStore) Put(_ context.Context, url string, state model.ResumableState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[url] = state
	return nil
}

func (m *memoryStore) Delete(_ context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, url)
	return nil
}

func (m *memoryStore) Close() error {
	return nil
}
