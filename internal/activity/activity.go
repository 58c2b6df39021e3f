// Package activity publishes fire-and-forget events about memory reads
// and writes so observers (dashboards, CRM syncs) can follow along.
// Publishing never blocks or fails a request.
package activity

import "context"

// Event is one observable action.
type Event struct {
	Type        string         `json:"type"`
	WorkspaceID string         `json:"workspace_id"`
	SubjectID   string         `json:"subject_id,omitempty"`
	SessionID   string         `json:"session_id,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}

// Event types.
const (
	TypeMemoryRetrieved  = "memory_retrieved"
	TypeMemoryAdded      = "memory_added"
	TypeIdentityResolved = "identity_resolved"
	TypeSubjectsLinked   = "subjects_linked"
	TypeSessionVerified  = "session_verified"
	TypeHandoff          = "handoff"
)

// Publisher emits events best-effort.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// Noop discards all events.
type Noop struct{}

// Publish discards the event.
func (Noop) Publish(context.Context, Event) {}
