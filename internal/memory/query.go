package memory

import (
	"context"
	"fmt"

	"recall/internal/activity"
	factmodels "recall/internal/facts/models"
	"recall/internal/facts/policy"
	identitymodels "recall/internal/identity/models"
	vmodels "recall/internal/verification/models"
)

// Query retrieves facts mid-conversation. Broad questions ("what do you
// know about me") return the subject's facts unfiltered; anything else
// searches by substring. Results are cached per subject, agent, query,
// and verification standing.
func (s *Service) Query(ctx context.Context, workspaceID string, req QueryRequest) (*QueryPayload, error) {
	start := s.now()

	subjectID, err := s.resolver.Resolve(ctx, workspaceID, identitymodels.Hint{
		SubjectID: req.SubjectID,
		VisitorID: req.VisitorID,
		Email:     req.Email,
		SessionID: req.SessionID,
		Phone:     req.Phone,
	})
	if err != nil {
		return nil, fmt.Errorf("query resolve: %w", err)
	}
	if subjectID == "" {
		return &QueryPayload{
			Facts:             []factmodels.Fact{},
			Snippets:          []string{},
			Citations:         []string{},
			VerificationLevel: vmodels.LevelNone,
			LatencyHint:       s.latencyHint(start),
		}, nil
	}

	state := s.verification.State(ctx, workspaceID, req.SessionID, subjectID)
	verified := state.Level.Disclosing()

	term := searchTerm(req.Query)
	topK := clampTopK(req.TopK)
	cacheKey := fmt.Sprintf("query::%s::%s::%d::%t", req.AgentID, term, topK, verified)

	if payload, ok := s.queries.Get(ctx, workspaceID, subjectID, cacheKey); ok {
		payload.LatencyHint = s.latencyHint(start)
		return &payload, nil
	}

	facts, err := s.memories.Search(ctx, workspaceID, subjectID, term, req.AgentID, topK)
	if err != nil {
		return nil, fmt.Errorf("query search: %w", err)
	}

	facts, protectedCount := policy.FilterForDisclosure(policy.TrimKnowledgeBase(facts), verified)
	if facts == nil {
		facts = []factmodels.Fact{}
	}

	payload := QueryPayload{
		Facts:                   facts,
		Snippets:                []string{},
		Citations:               []string{},
		VerificationLevel:       state.Level,
		ProtectedFactsAvailable: protectedCount > 0,
		LatencyHint:             s.latencyHint(start),
	}
	s.queries.Put(ctx, workspaceID, subjectID, cacheKey, payload)

	s.activity.Publish(ctx, activity.Event{
		Type:        activity.TypeMemoryRetrieved,
		WorkspaceID: workspaceID,
		SubjectID:   subjectID,
		SessionID:   req.SessionID,
		Data: map[string]any{
			"query":    req.Query,
			"returned": len(facts),
		},
	})
	return &payload, nil
}
