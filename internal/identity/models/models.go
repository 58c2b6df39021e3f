// Package models defines identity records shared by the resolver, stores,
// and handlers.
package models

import "time"

// Hint carries every identifier a request may present. Resolution priority
// is fixed: SubjectID, VisitorID, Email, session anchor, Phone.
type Hint struct {
	SubjectID string
	VisitorID string
	Email     string
	SessionID string
	Phone     string
}

// Empty reports whether the hint carries no identifiers at all.
func (h Hint) Empty() bool {
	return h.SubjectID == "" && h.VisitorID == "" && h.Email == "" && h.SessionID == "" && h.Phone == ""
}

// SessionIdentity anchors a session to a subject with its contact details.
type SessionIdentity struct {
	WorkspaceID string         `json:"workspace_id"`
	SessionID   string         `json:"session_id"`
	SubjectID   string         `json:"subject_id,omitempty"`
	Phone       string         `json:"phone,omitempty"`
	Email       string         `json:"email,omitempty"`
	ChannelMode string         `json:"channel_mode,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
