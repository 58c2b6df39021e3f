package memory

import (
	"context"
	"strings"

	"recall/internal/activity"
	factmodels "recall/internal/facts/models"
	"recall/internal/facts/policy"
	identitymodels "recall/internal/identity/models"
	"recall/internal/intel"
	dErrors "recall/pkg/domainerrors"
)

// ingestRequest is the write-side subset shared by Upsert and the
// bootstrap inline write.
type ingestRequest struct {
	AgentID     string
	CallID      string
	Transcript  string
	Summary     string
	Sentiment   string
	Outcome     string
	ActionItems []string
	Facts       []factmodels.IncomingFact
}

// Upsert writes conversation memory. Pure logging writes (no facts) may
// run detached when the caller sets defer_logging; force_sync overrides
// that for callers that need the counts.
func (s *Service) Upsert(ctx context.Context, workspaceID string, req UpsertRequest) (*UpsertResult, error) {
	subjectID, err := s.resolver.Resolve(ctx, workspaceID, identitymodels.Hint{
		SubjectID: req.SubjectID,
		VisitorID: req.VisitorID,
		Email:     req.Email,
		SessionID: req.SessionID,
		Phone:     req.Phone,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "identity resolution failed")
	}
	if subjectID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "no usable identifier on request")
	}

	ingest := ingestRequest{
		AgentID:     req.AgentID,
		CallID:      req.CallID,
		Transcript:  req.Transcript,
		Summary:     req.Summary,
		Sentiment:   req.Sentiment,
		Outcome:     req.Outcome,
		ActionItems: req.ActionItems,
		Facts:       req.Facts,
	}

	if req.DeferLogging && len(req.Facts) == 0 && !req.ForceSync {
		detached := context.WithoutCancel(ctx)
		go func() {
			if _, _, err := s.ingest(detached, workspaceID, subjectID, ingest); err != nil {
				s.logger.Warn("deferred write failed",
					"subject_id", subjectID,
					"error", err.Error(),
				)
			}
		}()
		return &UpsertResult{SubjectID: subjectID, Deferred: true}, nil
	}

	stored, suppressed, err := s.ingest(ctx, workspaceID, subjectID, ingest)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "memory write failed")
	}
	return &UpsertResult{SubjectID: subjectID, Stored: stored, Suppressed: suppressed}, nil
}

// ingest is the single write path: call row, summary, transcript mining,
// fact persistence, cache eviction, activity event.
func (s *Service) ingest(ctx context.Context, workspaceID, subjectID string, req ingestRequest) (stored, suppressed int, err error) {
	pol := s.policiesFor(ctx, workspaceID)
	incoming := req.Facts

	summary := strings.TrimSpace(req.Summary)
	sentiment := req.Sentiment
	outcome := req.Outcome
	actionItems := req.ActionItems

	if req.Transcript != "" {
		if req.CallID != "" {
			if err := s.calls.InsertCall(ctx, factmodels.Call{
				WorkspaceID: workspaceID,
				CallID:      req.CallID,
				SubjectID:   subjectID,
				AgentID:     req.AgentID,
				Transcript:  req.Transcript,
				CreatedAt:   s.now(),
			}); err != nil {
				s.logger.WarnContext(ctx, "call persist failed",
					"call_id", req.CallID,
					"error", err.Error(),
				)
			}
		}

		incoming = append(incoming, policy.ExtractFromTranscript(req.Transcript, pol)...)

		if summary == "" {
			analysis := s.analyze(ctx, req.Transcript)
			if analysis != nil {
				summary = strings.TrimSpace(analysis.Summary)
				if sentiment == "" {
					sentiment = analysis.Sentiment
				}
				if outcome == "" {
					outcome = analysis.Outcome
				}
				if len(actionItems) == 0 {
					actionItems = analysis.ActionItems
				}
				if name := strings.TrimSpace(analysis.UserName); name != "" {
					incoming = append(incoming, factmodels.IncomingFact{
						Text:       "User's name is " + name,
						Type:       policy.TypeGeneral,
						Confidence: 0.85,
					})
				}
			}
			if summary == "" {
				summary = intel.Summarize(req.Transcript)
			}
		}
	}

	if summary != "" {
		if err := s.calls.InsertSummary(ctx, factmodels.CallSummary{
			WorkspaceID: workspaceID,
			CallID:      req.CallID,
			SubjectID:   subjectID,
			Summary:     summary,
			Sentiment:   sentiment,
			Outcome:     outcome,
			ActionItems: actionItems,
			CreatedAt:   s.now(),
		}); err != nil {
			s.logger.WarnContext(ctx, "summary persist failed",
				"call_id", req.CallID,
				"error", err.Error(),
			)
		}
	}

	stored, suppressed = s.persistFacts(ctx, workspaceID, subjectID, req.AgentID, incoming, pol)

	s.InvalidateSubject(ctx, workspaceID, subjectID)

	s.activity.Publish(ctx, activity.Event{
		Type:        activity.TypeMemoryAdded,
		WorkspaceID: workspaceID,
		SubjectID:   subjectID,
		Data: map[string]any{
			"stored":     stored,
			"suppressed": suppressed,
			"summarized": summary != "",
		},
	})
	return stored, suppressed, nil
}

// analyze runs the transcript through the configured analyzer,
// best-effort.
func (s *Service) analyze(ctx context.Context, transcript string) *intel.Intelligence {
	if s.analyzer == nil {
		return nil
	}
	analysis, err := s.analyzer.Analyze(ctx, transcript)
	if err != nil {
		s.logger.WarnContext(ctx, "transcript analysis failed, using heuristic summary",
			"error", err.Error(),
		)
		return nil
	}
	return analysis
}
