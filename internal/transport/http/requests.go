package httptransport

import (
	factmodels "recall/internal/facts/models"
)

// identifiers is the identity block every memory endpoint accepts.
// Callers that only track calls may send call_id or conversation_id in
// place of session_id.
type identifiers struct {
	SessionID      string `json:"session_id"`
	CallID         string `json:"call_id"`
	ConversationID string `json:"conversation_id"`
	AgentID        string `json:"agent_id"`
	SubjectID      string `json:"subject_id"`
	VisitorID      string `json:"visitor_id"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
}

func (i identifiers) sessionID() string {
	if i.SessionID != "" {
		return i.SessionID
	}
	if i.CallID != "" {
		return i.CallID
	}
	return i.ConversationID
}

type bootstrapRequest struct {
	identifiers
	Query string `json:"query"`
	TopK  int    `json:"top_k"`

	Transcript string                    `json:"transcript"`
	Summary    string                    `json:"summary"`
	Facts      []factmodels.IncomingFact `json:"facts"`
}

type queryRequest struct {
	identifiers
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type upsertRequest struct {
	identifiers
	Transcript  string                    `json:"transcript"`
	Summary     string                    `json:"summary"`
	Sentiment   string                    `json:"sentiment"`
	Outcome     string                    `json:"outcome"`
	ActionItems []string                  `json:"action_items"`
	Facts       []factmodels.IncomingFact `json:"facts"`

	DeferLogging bool `json:"defer_logging"`
	ForceSync    bool `json:"force_sync"`
}

type otpRequest struct {
	identifiers
	Channel string `json:"channel"`
	Contact string `json:"contact"`
}

type verifyRequest struct {
	identifiers
	Code string `json:"code"`
}

type sessionIdentityRequest struct {
	SessionID   string         `json:"session_id"`
	SubjectID   string         `json:"subject_id"`
	Phone       string         `json:"phone"`
	Email       string         `json:"email"`
	ChannelMode string         `json:"channel_mode"`
	Metadata    map[string]any `json:"metadata"`
}

type validateRequest struct {
	Phone string `json:"phone"`
	Email string `json:"email"`
}

type contextSetRequest struct {
	SessionID       string  `json:"session_id"`
	ChannelMode     *string `json:"channel_mode"`
	VerifiedSubject *string `json:"verified_subject"`
	HandoffReason   *string `json:"handoff_reason"`
}

type handoffRequest struct {
	identifiers
	Reason   string         `json:"reason"`
	Target   string         `json:"target"`
	Metadata map[string]any `json:"metadata"`
}
