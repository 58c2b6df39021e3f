// Package models defines fact and call records.
package models

import (
	"encoding/json"
	"strings"
	"time"
)

// DefaultConfidence is assumed when a caller submits a fact without one.
const DefaultConfidence = 0.8

// Fact is one remembered statement about a subject.
type Fact struct {
	WorkspaceID string    `json:"-"`
	SubjectID   string    `json:"-"`
	AgentID     string    `json:"agent_id,omitempty"`
	Text        string    `json:"fact"`
	Confidence  float64   `json:"confidence"`
	Type        string    `json:"fact_type,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IncomingFact is a fact as submitted by a caller: either a bare string
// or an object with text, confidence, and type.
type IncomingFact struct {
	Text       string  `json:"fact"`
	Confidence float64 `json:"confidence,omitempty"`
	Type       string  `json:"fact_type,omitempty"`
}

// UnmarshalJSON accepts both "some fact" and {"fact": ..., ...}. Object
// form also tolerates a "text" field.
func (f *IncomingFact) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		f.Text = strings.TrimSpace(text)
		f.Confidence = DefaultConfidence
		return nil
	}

	var obj struct {
		Fact       string  `json:"fact"`
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
		Type       string  `json:"fact_type"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	f.Text = strings.TrimSpace(obj.Fact)
	if f.Text == "" {
		f.Text = strings.TrimSpace(obj.Text)
	}
	f.Confidence = obj.Confidence
	if f.Confidence == 0 {
		f.Confidence = DefaultConfidence
	}
	f.Type = obj.Type
	return nil
}

// Call is one conversation's row; the transcript may be empty for calls
// logged from a summary only.
type Call struct {
	WorkspaceID string
	CallID      string
	SubjectID   string
	AgentID     string
	Transcript  string
	CreatedAt   time.Time
}

// CallSummary is the distilled record of one conversation.
type CallSummary struct {
	WorkspaceID string    `json:"-"`
	CallID      string    `json:"call_id"`
	SubjectID   string    `json:"-"`
	Summary     string    `json:"summary"`
	Sentiment   string    `json:"sentiment,omitempty"`
	Outcome     string    `json:"outcome,omitempty"`
	ActionItems []string  `json:"action_items,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
