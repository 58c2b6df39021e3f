package store

import (
	"context"
	"sync"
	"time"

	"recall/internal/verification/models"
)

// InMemoryStore implements Store with a mutex-guarded map.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]models.Record
}

// NewInMemoryStore creates an empty in-memory verification store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]models.Record)}
}

func key(workspaceID, sessionID string) string {
	return workspaceID + "::" + sessionID
}

// Get returns the session's record, or nil when absent.
func (s *InMemoryStore) Get(ctx context.Context, workspaceID, sessionID string) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[key(workspaceID, sessionID)]
	if !ok {
		return nil, nil
	}
	copied := record
	return &copied, nil
}

// Put replaces the session's record.
func (s *InMemoryStore) Put(ctx context.Context, record *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *record
	stored.UpdatedAt = time.Now()
	s.records[key(record.WorkspaceID, record.SessionID)] = stored
	return nil
}

// SetLevel updates the level, optionally clearing the code hash.
func (s *InMemoryStore) SetLevel(ctx context.Context, workspaceID, sessionID string, level models.Level, clearCode bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(workspaceID, sessionID)
	record, ok := s.records[k]
	if !ok {
		return nil
	}
	record.Level = level
	if clearCode {
		record.CodeHash = ""
	}
	record.UpdatedAt = time.Now()
	s.records[k] = record
	return nil
}

// RecordAttempt persists a failed attempt count.
func (s *InMemoryStore) RecordAttempt(ctx context.Context, workspaceID, sessionID string, attempts int, level models.Level) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(workspaceID, sessionID)
	record, ok := s.records[k]
	if !ok {
		return nil
	}
	record.AttemptCount = attempts
	record.Level = level
	record.UpdatedAt = time.Now()
	s.records[k] = record
	return nil
}

// MarkVerified flips the record to verified.
func (s *InMemoryStore) MarkVerified(ctx context.Context, workspaceID, sessionID string, at, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(workspaceID, sessionID)
	record, ok := s.records[k]
	if !ok {
		return nil
	}
	record.Level = models.LevelVerified
	record.CodeHash = ""
	record.AttemptCount = 0
	record.VerifiedAt = at
	record.VerifiedUntil = until
	record.UpdatedAt = time.Now()
	s.records[k] = record
	return nil
}

// RewriteSubject moves rows from one subject id to another.
func (s *InMemoryStore) RewriteSubject(ctx context.Context, workspaceID, oldID, newID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, record := range s.records {
		if record.WorkspaceID == workspaceID && record.SubjectID == oldID {
			record.SubjectID = newID
			s.records[k] = record
		}
	}
	return nil
}
