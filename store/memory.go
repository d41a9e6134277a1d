package store

import (
	"context"
	"sort"
	"sync"

	"github.com/nathoo/rivecore/engine/save"
	"github.com/nathoo/rivecore/types"
)

// Memory is an in-memory store. Sessions are kept as snapshots so callers
// never share maps with the store.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates a new in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// Load retrieves a session by user id.
func (m *Memory) Load(ctx context.Context, userID string) (*types.Session, error) {
	m.mu.RLock()
	data, ok := m.data[userID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return save.Decode(data)
}

// Save stores a session.
func (m *Memory) Save(ctx context.Context, s *types.Session) error {
	data, err := save.Save(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[s.UserID] = data
	return nil
}

// Delete removes a session.
func (m *Memory) Delete(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, userID)
	return nil
}

// Users lists the stored user ids.
func (m *Memory) Users(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	users := make([]string, 0, len(m.data))
	for id := range m.data {
		users = append(users, id)
	}
	sort.Strings(users)
	return users, nil
}

// Close is a no-op for memory store.
func (m *Memory) Close() error {
	return nil
}
