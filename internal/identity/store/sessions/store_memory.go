package sessions

import (
	"context"
	"sync"
	"time"

	"recall/internal/identity/models"
)

// InMemoryStore implements Store with a mutex-guarded map.
type InMemoryStore struct {
	mu         sync.RWMutex
	identities map[string]models.SessionIdentity
}

// NewInMemoryStore creates an empty in-memory session identity store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{identities: make(map[string]models.SessionIdentity)}
}

func key(workspaceID, sessionID string) string {
	return workspaceID + "::" + sessionID
}

// Get returns the session identity, or nil when absent.
func (s *InMemoryStore) Get(ctx context.Context, workspaceID, sessionID string) (*models.SessionIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	identity, ok := s.identities[key(workspaceID, sessionID)]
	if !ok {
		return nil, nil
	}
	copied := identity
	return &copied, nil
}

// Upsert stores the identity, merging over any existing row.
func (s *InMemoryStore) Upsert(ctx context.Context, identity *models.SessionIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(identity.WorkspaceID, identity.SessionID)
	merged := s.identities[k]
	merged.WorkspaceID = identity.WorkspaceID
	merged.SessionID = identity.SessionID
	if identity.SubjectID != "" {
		merged.SubjectID = identity.SubjectID
	}
	if identity.Phone != "" {
		merged.Phone = identity.Phone
	}
	if identity.Email != "" {
		merged.Email = identity.Email
	}
	if identity.ChannelMode != "" {
		merged.ChannelMode = identity.ChannelMode
	}
	if identity.Metadata != nil {
		merged.Metadata = identity.Metadata
	}
	merged.UpdatedAt = time.Now()
	s.identities[k] = merged
	return nil
}

// Seed anchors the session to a subject if it has none yet.
func (s *InMemoryStore) Seed(ctx context.Context, workspaceID, sessionID, subjectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(workspaceID, sessionID)
	identity := s.identities[k]
	if identity.SubjectID != "" {
		return nil
	}
	identity.WorkspaceID = workspaceID
	identity.SessionID = sessionID
	identity.SubjectID = subjectID
	identity.UpdatedAt = time.Now()
	s.identities[k] = identity
	return nil
}
