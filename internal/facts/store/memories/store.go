// Package memories persists subject facts.
package memories

import (
	"context"

	"recall/internal/facts/models"
)

// Store is the fact persistence contract. Reads return newest-first.
type Store interface {
	// Recent returns the subject's latest facts regardless of agent.
	Recent(ctx context.Context, workspaceID, subjectID string, limit int) ([]models.Fact, error)
	// Search returns facts matching the query substring, restricted to
	// rows with no agent or the given agent. An empty query matches all.
	Search(ctx context.Context, workspaceID, subjectID, query, agentID string, limit int) ([]models.Fact, error)
	// Insert writes the fact unless an identical text (case-insensitive)
	// already exists for the subject. Reports whether a row was written.
	Insert(ctx context.Context, fact models.Fact) (bool, error)
	// CountByType counts the subject's facts of one type.
	CountByType(ctx context.Context, workspaceID, subjectID, factType string) (int, error)
	RewriteSubject(ctx context.Context, workspaceID, oldID, newID string) error
}
