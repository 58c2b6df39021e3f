// Package intel analyzes call transcripts: summary, sentiment, outcome,
// caller name, action items. The analyzer is a black box behind an
// interface; a heuristic summarizer covers deployments without one.
package intel

import (
	"context"
	"strings"

	"recall/internal/facts/policy"
)

// Intelligence is the distilled result of analyzing one transcript.
type Intelligence struct {
	Summary     string   `json:"summary"`
	Sentiment   string   `json:"sentiment"`
	Outcome     string   `json:"outcome"`
	UserName    string   `json:"user_name"`
	ActionItems []string `json:"action_items"`
}

// Analyzer produces intelligence from a raw transcript.
type Analyzer interface {
	Analyze(ctx context.Context, transcript string) (*Intelligence, error)
}

// Summarize is the heuristic fallback: the transcript's first two
// sentences, bounded to keep summaries glanceable.
func Summarize(transcript string) string {
	sentences := policy.SplitSentences(transcript)
	if len(sentences) == 0 {
		return ""
	}
	if len(sentences) > 2 {
		sentences = sentences[:2]
	}
	summary := strings.Join(sentences, " ")
	if runes := []rune(summary); len(runes) > 280 {
		summary = strings.TrimRight(string(runes[:280]), " ") + "…"
	}
	return summary
}
