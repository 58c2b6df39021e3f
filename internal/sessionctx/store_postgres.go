package sessionctx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStore persists contexts in the session_context table:
//
//	CREATE TABLE session_context (
//	    workspace_id     TEXT NOT NULL,
//	    session_id       TEXT NOT NULL,
//	    channel_mode     TEXT,
//	    verified_subject TEXT,
//	    handoff_reason   TEXT,
//	    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    PRIMARY KEY (workspace_id, session_id)
//	);
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store backed by the given database.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Get returns the stored context, or nil when absent.
func (s *PostgresStore) Get(ctx context.Context, workspaceID, sessionID string) (*Context, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(channel_mode, ''), COALESCE(verified_subject, ''),
		       COALESCE(handoff_reason, ''), updated_at
		FROM session_context
		WHERE workspace_id = $1 AND session_id = $2`,
		workspaceID, sessionID,
	)

	var sc Context
	err := row.Scan(&sc.ChannelMode, &sc.VerifiedSubject, &sc.HandoffReason, &sc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session context: %w", err)
	}
	return &sc, nil
}

// Put upserts the context row.
func (s *PostgresStore) Put(ctx context.Context, workspaceID, sessionID string, sc Context) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_context (workspace_id, session_id, channel_mode, verified_subject, handoff_reason, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6)
		ON CONFLICT (workspace_id, session_id) DO UPDATE SET
			channel_mode     = EXCLUDED.channel_mode,
			verified_subject = EXCLUDED.verified_subject,
			handoff_reason   = EXCLUDED.handoff_reason,
			updated_at       = EXCLUDED.updated_at`,
		workspaceID, sessionID, sc.ChannelMode, sc.VerifiedSubject, sc.HandoffReason, sc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("put session context: %w", err)
	}
	return nil
}
