// Package calls persists call rows and their summaries.
package calls

import (
	"context"

	"recall/internal/facts/models"
)

// Store is the call persistence contract.
type Store interface {
	// InsertCall records a call, ignoring duplicates by call id.
	InsertCall(ctx context.Context, call models.Call) error
	// InsertSummary records one call's summary row.
	InsertSummary(ctx context.Context, summary models.CallSummary) error
	// RecentSummaries returns the subject's latest summaries.
	RecentSummaries(ctx context.Context, workspaceID, subjectID string, limit int) ([]models.CallSummary, error)
	RewriteSubject(ctx context.Context, workspaceID, oldID, newID string) error
}
