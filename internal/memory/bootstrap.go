package memory

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"recall/internal/activity"
	"recall/internal/cache"
	factmodels "recall/internal/facts/models"
	"recall/internal/facts/policy"
	identitymodels "recall/internal/identity/models"
	vmodels "recall/internal/verification/models"
)

// Bootstrap opens a conversation: it resolves the caller, applies any
// inline write from the previous turn, and returns the subject's profile,
// recent summaries, and query matches in one payload. Anonymous callers
// get an empty payload rather than an error.
func (s *Service) Bootstrap(ctx context.Context, workspaceID string, req BootstrapRequest) (*BootstrapPayload, error) {
	start := s.now()

	subjectID, err := s.resolver.Resolve(ctx, workspaceID, identitymodels.Hint{
		SubjectID: req.SubjectID,
		VisitorID: req.VisitorID,
		Email:     req.Email,
		SessionID: req.SessionID,
		Phone:     req.Phone,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap resolve: %w", err)
	}
	if subjectID == "" {
		return &BootstrapPayload{
			ProfileFacts:      []factmodels.Fact{},
			RecentSummaries:   []factmodels.CallSummary{},
			Facts:             []factmodels.Fact{},
			VerificationLevel: vmodels.LevelNone,
			LatencyHint:       s.latencyHint(start),
		}, nil
	}

	var wroteInline bool
	if req.hasWrite() {
		if _, _, err := s.ingest(ctx, workspaceID, subjectID, ingestRequest{
			AgentID:    req.AgentID,
			CallID:     req.CallID,
			Transcript: req.Transcript,
			Summary:    req.Summary,
			Facts:      req.Facts,
		}); err != nil {
			s.logger.WarnContext(ctx, "inline write failed",
				"subject_id", subjectID,
				"error", err.Error(),
			)
		} else {
			wroteInline = true
		}
	}

	state := s.verification.State(ctx, workspaceID, req.SessionID, subjectID)
	verified := state.Level.Disclosing()

	cacheKey := fmt.Sprintf("bootstrap::%s::%s::%t", req.AgentID, searchTerm(req.Query), verified)

	if !req.hasWrite() && req.SessionID != "" {
		snap, ok := s.snapshots.Get(workspaceID, req.SessionID)
		// A snapshot taken under a different verification standing is
		// stale: verifying mid-session must unlock on the next read.
		if ok && snap.SubjectID == subjectID && snap.AgentID == req.AgentID && snap.VerificationLevel == state.Level {
			s.metrics.CacheHit(cache.TierSession)
			snap.WriteAck = false
			snap.LatencyHint = s.latencyHint(start)
			return &snap, nil
		}
		s.metrics.CacheMiss(cache.TierSession)
	}

	if !req.hasWrite() {
		if payload, ok := s.bootstraps.Get(ctx, workspaceID, subjectID, cacheKey); ok {
			payload.LatencyHint = s.latencyHint(start)
			if req.SessionID != "" {
				s.snapshots.Put(workspaceID, req.SessionID, payload)
			}
			return &payload, nil
		}
	}

	payload, err := s.gather(ctx, workspaceID, subjectID, req.AgentID, req.Query, req.TopK, verified)
	if err != nil {
		return nil, err
	}
	payload.WriteAck = wroteInline
	payload.VerificationLevel = state.Level
	payload.LatencyHint = s.latencyHint(start)

	s.bootstraps.Put(ctx, workspaceID, subjectID, cacheKey, *payload)
	if req.SessionID != "" {
		s.snapshots.Put(workspaceID, req.SessionID, *payload)
	}

	s.activity.Publish(ctx, activity.Event{
		Type:        activity.TypeMemoryRetrieved,
		WorkspaceID: workspaceID,
		SubjectID:   subjectID,
		SessionID:   req.SessionID,
		Data: map[string]any{
			"profile_facts": len(payload.ProfileFacts),
			"verified":      verified,
		},
	})
	return payload, nil
}

// gather scatter-gathers the subject's profile facts, recent summaries,
// and query matches, then applies disclosure filtering and the
// knowledge-base trim.
func (s *Service) gather(ctx context.Context, workspaceID, subjectID, agentID, query string, topK int, verified bool) (*BootstrapPayload, error) {
	var (
		profile    []factmodels.Fact
		summaries  []factmodels.CallSummary
		queryFacts []factmodels.Fact
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		facts, err := s.memories.Recent(gctx, workspaceID, subjectID, profileLimit)
		if err != nil {
			return fmt.Errorf("profile facts: %w", err)
		}
		profile = facts
		return nil
	})
	g.Go(func() error {
		rows, err := s.calls.RecentSummaries(gctx, workspaceID, subjectID, summaryLimit)
		if err != nil {
			return fmt.Errorf("recent summaries: %w", err)
		}
		summaries = rows
		return nil
	})
	if query != "" {
		term := searchTerm(query)
		g.Go(func() error {
			facts, err := s.memories.Search(gctx, workspaceID, subjectID, term, agentID, clampTopK(topK))
			if err != nil {
				return fmt.Errorf("query facts: %w", err)
			}
			queryFacts = facts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	profile, protectedCount := policy.FilterForDisclosure(policy.TrimKnowledgeBase(profile), verified)
	queryFacts, _ = policy.FilterForDisclosure(policy.TrimKnowledgeBase(queryFacts), verified)
	summaries = policy.FilterSummaries(summaries, verified)

	if profile == nil {
		profile = []factmodels.Fact{}
	}
	if summaries == nil {
		summaries = []factmodels.CallSummary{}
	}
	if queryFacts == nil {
		queryFacts = []factmodels.Fact{}
	}

	return &BootstrapPayload{
		SubjectID:               subjectID,
		AgentID:                 agentID,
		ProfileFacts:            profile,
		RecentSummaries:         summaries,
		Facts:                   queryFacts,
		ProtectedCount:          protectedCount,
		ProtectedFactsAvailable: protectedCount > 0,
	}, nil
}
