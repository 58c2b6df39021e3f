package calls

import (
	"context"
	"sort"
	"sync"

	"recall/internal/facts/models"
)

// InMemoryStore implements Store with mutex-guarded slices.
type InMemoryStore struct {
	mu        sync.RWMutex
	calls     map[string]models.Call
	summaries []models.CallSummary
}

// NewInMemoryStore creates an empty in-memory call store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{calls: make(map[string]models.Call)}
}

// InsertCall records a call, ignoring duplicates by call id.
func (s *InMemoryStore) InsertCall(ctx context.Context, call models.Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := call.WorkspaceID + "::" + call.CallID
	if _, exists := s.calls[key]; exists {
		return nil
	}
	s.calls[key] = call
	return nil
}

// InsertSummary records one call's summary row.
func (s *InMemoryStore) InsertSummary(ctx context.Context, summary models.CallSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = append(s.summaries, summary)
	return nil
}

// RecentSummaries returns the subject's latest summaries.
func (s *InMemoryStore) RecentSummaries(ctx context.Context, workspaceID, subjectID string, limit int) ([]models.CallSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []models.CallSummary
	for _, sum := range s.summaries {
		if sum.WorkspaceID == workspaceID && sum.SubjectID == subjectID {
			matched = append(matched, sum)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// RewriteSubject moves calls and summaries to a new subject id.
func (s *InMemoryStore) RewriteSubject(ctx context.Context, workspaceID, oldID, newID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, call := range s.calls {
		if call.WorkspaceID == workspaceID && call.SubjectID == oldID {
			call.SubjectID = newID
			s.calls[key] = call
		}
	}
	for i, sum := range s.summaries {
		if sum.WorkspaceID == workspaceID && sum.SubjectID == oldID {
			s.summaries[i].SubjectID = newID
		}
	}
	return nil
}
