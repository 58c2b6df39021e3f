// Package policies loads workspace fact policy overrides.
package policies

import (
	"context"

	"recall/internal/facts/policy"
)

// Store returns a workspace's policy override rows. Workspaces without
// overrides (and deployments without the table) return none.
type Store interface {
	Overrides(ctx context.Context, workspaceID string) ([]policy.Override, error)
}
