package sessionctx

import (
	"context"
	"sync"
)

// InMemoryStore keeps contexts in a map for tests and local runs.
type InMemoryStore struct {
	mu   sync.RWMutex
	rows map[string]Context
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{rows: make(map[string]Context)}
}

func (s *InMemoryStore) key(workspaceID, sessionID string) string {
	return workspaceID + "::" + sessionID
}

// Get returns the stored context, or nil when absent.
func (s *InMemoryStore) Get(_ context.Context, workspaceID, sessionID string) (*Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.rows[s.key(workspaceID, sessionID)]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

// Put stores the context, replacing any previous row.
func (s *InMemoryStore) Put(_ context.Context, workspaceID, sessionID string, sc Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows[s.key(workspaceID, sessionID)] = sc
	return nil
}
