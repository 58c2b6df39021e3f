// Package models defines the verification state machine's records and
// levels.
package models

import "time"

// Level is a session's verification standing.
type Level string

const (
	LevelNone     Level = "none"
	LevelPending  Level = "pending"
	LevelVerified Level = "verified"
	LevelExpired  Level = "expired"
	LevelLocked   Level = "locked"
)

// Disclosing reports whether this level unlocks protected facts.
func (l Level) Disclosing() bool {
	return l == LevelVerified
}

// State is the read-side view of a session's verification.
type State struct {
	Level         Level     `json:"level"`
	VerifiedUntil time.Time `json:"verified_until,omitempty"`
}

// Record is one session's verification row. A zero VerifiedUntil means
// the session has never verified; an empty CodeHash means no challenge is
// outstanding.
type Record struct {
	WorkspaceID   string
	SessionID     string
	SubjectID     string
	Channel       string
	Contact       string
	CodeHash      string
	ExpiresAt     time.Time
	Level         Level
	AttemptCount  int
	VerifiedAt    time.Time
	VerifiedUntil time.Time
	UpdatedAt     time.Time
}

// Challenge is what Request returns to callers: where the code went and
// how long it lives. The code itself never leaves the sender.
type Challenge struct {
	Channel   string    `json:"channel"`
	Contact   string    `json:"contact"`
	ExpiresAt time.Time `json:"expires_at"`
}
