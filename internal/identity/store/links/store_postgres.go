package links

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresStore implements Store against the subject_links table.
//
// Schema:
//
//	CREATE TABLE subject_links (
//	    workspace_id TEXT NOT NULL,
//	    alias_id     TEXT NOT NULL,
//	    primary_id   TEXT NOT NULL,
//	    updated_at   TIMESTAMPTZ NOT NULL,
//	    PRIMARY KEY (workspace_id, alias_id)
//	);
//
// The table is optional; callers watch for undefined-table errors and
// degrade resolution to identity.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a Postgres-backed link store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Primary returns the primary id recorded for an alias.
func (s *PostgresStore) Primary(ctx context.Context, workspaceID, aliasID string) (string, bool, error) {
	var primary string
	err := s.db.QueryRowContext(ctx,
		`SELECT primary_id FROM subject_links WHERE workspace_id = $1 AND alias_id = $2`,
		workspaceID, aliasID,
	).Scan(&primary)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("select subject link: %w", err)
	}
	return primary, true, nil
}

// Upsert records an alias edge, replacing any existing one.
func (s *PostgresStore) Upsert(ctx context.Context, workspaceID, primaryID, aliasID string, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subject_links (workspace_id, alias_id, primary_id, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (workspace_id, alias_id)
		 DO UPDATE SET primary_id = EXCLUDED.primary_id, updated_at = EXCLUDED.updated_at`,
		workspaceID, aliasID, primaryID, now,
	)
	if err != nil {
		return fmt.Errorf("upsert subject link: %w", err)
	}
	return nil
}
