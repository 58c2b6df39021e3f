package memory

import (
	factmodels "recall/internal/facts/models"
	vmodels "recall/internal/verification/models"
)

// LatencyHint values tell voice agents whether to buy time with a filler
// phrase while the payload is read aloud.
const (
	LatencyFast   = "fast"
	LatencyFiller = "use_filler"
)

// BootstrapRequest opens a conversation: identifiers to resolve, an
// optional retrieval query, and an optional inline write from the
// previous turn.
type BootstrapRequest struct {
	SessionID string
	AgentID   string
	SubjectID string
	VisitorID string
	Email     string
	Phone     string

	Query string
	TopK  int

	CallID     string
	Transcript string
	Summary    string
	Facts      []factmodels.IncomingFact
}

// hasWrite reports whether the request carries anything to persist.
func (r BootstrapRequest) hasWrite() bool {
	return r.Transcript != "" || r.Summary != "" || len(r.Facts) > 0
}

// BootstrapPayload is everything an agent needs at conversation start.
type BootstrapPayload struct {
	SubjectID               string                   `json:"subject_id,omitempty"`
	AgentID                 string                   `json:"-"`
	WriteAck                bool                     `json:"write_ack"`
	ProfileFacts            []factmodels.Fact        `json:"profile_facts"`
	RecentSummaries         []factmodels.CallSummary `json:"recent_summaries"`
	Facts                   []factmodels.Fact        `json:"facts"`
	ProtectedCount          int                      `json:"protected_count"`
	ProtectedFactsAvailable bool                     `json:"protected_facts_available"`
	VerificationLevel       vmodels.Level            `json:"verification_level"`
	LatencyHint             string                   `json:"latency_hint"`
}

// QueryRequest is a mid-conversation retrieval.
type QueryRequest struct {
	SessionID string
	AgentID   string
	SubjectID string
	VisitorID string
	Email     string
	Phone     string

	Query string
	TopK  int
}

// QueryPayload is a retrieval result.
type QueryPayload struct {
	Facts                   []factmodels.Fact `json:"facts"`
	Snippets                []string          `json:"snippets"`
	Citations               []string          `json:"citations"`
	VerificationLevel       vmodels.Level     `json:"verification_level"`
	ProtectedFactsAvailable bool              `json:"protected_facts_available"`
	LatencyHint             string            `json:"latency_hint"`
}

// UpsertRequest writes conversation memory: explicit facts, a transcript
// to mine, or a ready-made summary.
type UpsertRequest struct {
	SessionID string
	AgentID   string
	SubjectID string
	VisitorID string
	Email     string
	Phone     string

	CallID      string
	Transcript  string
	Summary     string
	Sentiment   string
	Outcome     string
	ActionItems []string
	Facts       []factmodels.IncomingFact

	DeferLogging bool
	ForceSync    bool
}

// UpsertResult reports what an upsert did. Deferred results carry no
// counts; the write completes in the background.
type UpsertResult struct {
	SubjectID  string `json:"subject_id"`
	Stored     int    `json:"facts_stored"`
	Suppressed int    `json:"facts_suppressed"`
	Deferred   bool   `json:"deferred"`
}
