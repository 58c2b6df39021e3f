// Package sessions stores session identity anchors: which subject a
// session belongs to and the contact details observed on it.
package sessions

import (
	"context"

	"recall/internal/identity/models"
)

// Store persists session identities. Get returns nil when the session has
// no identity row.
type Store interface {
	Get(ctx context.Context, workspaceID, sessionID string) (*models.SessionIdentity, error)
	Upsert(ctx context.Context, identity *models.SessionIdentity) error
	// Seed anchors the session to a subject only when the session has no
	// subject yet; an established anchor is never overwritten.
	Seed(ctx context.Context, workspaceID, sessionID, subjectID string) error
}
