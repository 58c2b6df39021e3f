package memories

import (
	"context"
	"sort"
	"strings"
	"sync"

	"recall/internal/facts/models"
)

// InMemoryStore implements Store with a mutex-guarded slice per subject.
type InMemoryStore struct {
	mu    sync.RWMutex
	facts map[string][]models.Fact
}

// NewInMemoryStore creates an empty in-memory fact store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{facts: make(map[string][]models.Fact)}
}

func subjectKey(workspaceID, subjectID string) string {
	return workspaceID + "::" + subjectID
}

func newestFirst(facts []models.Fact) []models.Fact {
	sorted := make([]models.Fact, len(facts))
	copy(sorted, facts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].UpdatedAt.After(sorted[j].UpdatedAt)
	})
	return sorted
}

// Recent returns the subject's latest facts.
func (s *InMemoryStore) Recent(ctx context.Context, workspaceID, subjectID string, limit int) ([]models.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sorted := newestFirst(s.facts[subjectKey(workspaceID, subjectID)])
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted, nil
}

// Search returns facts matching the query substring.
func (s *InMemoryStore) Search(ctx context.Context, workspaceID, subjectID, query, agentID string, limit int) ([]models.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(query)
	var matched []models.Fact
	for _, f := range s.facts[subjectKey(workspaceID, subjectID)] {
		if f.AgentID != "" && agentID != "" && f.AgentID != agentID {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(f.Text), needle) {
			continue
		}
		matched = append(matched, f)
	}

	matched = newestFirst(matched)
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// Insert writes the fact unless the text already exists for the subject.
func (s *InMemoryStore) Insert(ctx context.Context, fact models.Fact) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := subjectKey(fact.WorkspaceID, fact.SubjectID)
	lower := strings.ToLower(fact.Text)
	for _, existing := range s.facts[key] {
		if strings.ToLower(existing.Text) == lower {
			return false, nil
		}
	}
	s.facts[key] = append(s.facts[key], fact)
	return true, nil
}

// CountByType counts the subject's facts of one type.
func (s *InMemoryStore) CountByType(ctx context.Context, workspaceID, subjectID, factType string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, f := range s.facts[subjectKey(workspaceID, subjectID)] {
		if f.Type == factType {
			count++
		}
	}
	return count, nil
}

// RewriteSubject moves a subject's facts under a new id.
func (s *InMemoryStore) RewriteSubject(ctx context.Context, workspaceID, oldID, newID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldKey := subjectKey(workspaceID, oldID)
	moved := s.facts[oldKey]
	if len(moved) == 0 {
		return nil
	}
	delete(s.facts, oldKey)

	newKey := subjectKey(workspaceID, newID)
	for i := range moved {
		moved[i].SubjectID = newID
	}
	s.facts[newKey] = append(s.facts[newKey], moved...)
	return nil
}
