// Package store persists session verification rows.
package store

import (
	"context"
	"time"

	"recall/internal/verification/models"
)

// Store is the verification row persistence contract. Get returns nil
// when the session has no row.
type Store interface {
	Get(ctx context.Context, workspaceID, sessionID string) (*models.Record, error)
	// Put replaces the session's row wholesale; used when a new challenge
	// is issued.
	Put(ctx context.Context, record *models.Record) error
	// SetLevel updates the level in place, optionally clearing the
	// outstanding code hash.
	SetLevel(ctx context.Context, workspaceID, sessionID string, level models.Level, clearCode bool) error
	// RecordAttempt persists a failed attempt count and the level it
	// produced.
	RecordAttempt(ctx context.Context, workspaceID, sessionID string, attempts int, level models.Level) error
	// MarkVerified flips the row to verified: code hash cleared, attempts
	// reset, window stamped.
	MarkVerified(ctx context.Context, workspaceID, sessionID string, at, until time.Time) error
	RewriteSubject(ctx context.Context, workspaceID, oldID, newID string) error
}
