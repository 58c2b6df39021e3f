package links

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore implements Store with a mutex-guarded map, for tests and
// single-process deployments.
type InMemoryStore struct {
	mu    sync.RWMutex
	edges map[string]string
}

// NewInMemoryStore creates an empty in-memory link store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{edges: make(map[string]string)}
}

func edgeKey(workspaceID, aliasID string) string {
	return workspaceID + "::" + aliasID
}

// Primary returns the primary id for an alias.
func (s *InMemoryStore) Primary(ctx context.Context, workspaceID, aliasID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	primary, ok := s.edges[edgeKey(workspaceID, aliasID)]
	return primary, ok, nil
}

// Upsert records an alias edge, replacing any existing one.
func (s *InMemoryStore) Upsert(ctx context.Context, workspaceID, primaryID, aliasID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges[edgeKey(workspaceID, aliasID)] = primaryID
	return nil
}
