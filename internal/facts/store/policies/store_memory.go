package policies

import (
	"context"
	"sync"

	"recall/internal/facts/policy"
)

// InMemoryStore implements Store with a mutex-guarded map.
type InMemoryStore struct {
	mu        sync.RWMutex
	overrides map[string][]policy.Override
}

// NewInMemoryStore creates an empty in-memory policy store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{overrides: make(map[string][]policy.Override)}
}

// Overrides returns a workspace's override rows.
func (s *InMemoryStore) Overrides(ctx context.Context, workspaceID string) ([]policy.Override, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.overrides[workspaceID], nil
}

// Set replaces a workspace's overrides, for tests and seeding.
func (s *InMemoryStore) Set(workspaceID string, overrides []policy.Override) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[workspaceID] = overrides
}
