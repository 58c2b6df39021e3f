// Package links stores the subject alias graph: directed edges from an
// alias id to the primary id it collapsed into.
package links

import (
	"context"
	"time"
)

// Store persists alias edges. Primary returns the primary for an alias,
// or found=false when the alias has no edge.
type Store interface {
	Primary(ctx context.Context, workspaceID, aliasID string) (string, bool, error)
	Upsert(ctx context.Context, workspaceID, primaryID, aliasID string, now time.Time) error
}
