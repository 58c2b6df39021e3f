package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"recall/internal/verification/models"
)

// PostgresStore implements Store against session_verifications.
//
// Schema:
//
//	CREATE TABLE session_verifications (
//	    workspace_id   TEXT NOT NULL,
//	    session_id     TEXT NOT NULL,
//	    subject_id     TEXT NOT NULL,
//	    channel        TEXT NOT NULL,
//	    contact        TEXT NOT NULL,
//	    code_hash      TEXT,
//	    expires_at     TIMESTAMPTZ,
//	    level          TEXT NOT NULL,
//	    attempt_count  INT NOT NULL DEFAULT 0,
//	    verified_at    TIMESTAMPTZ,
//	    verified_until TIMESTAMPTZ,
//	    updated_at     TIMESTAMPTZ NOT NULL,
//	    PRIMARY KEY (workspace_id, session_id)
//	);
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a Postgres-backed verification store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Get returns the session's record, or nil when absent.
func (s *PostgresStore) Get(ctx context.Context, workspaceID, sessionID string) (*models.Record, error) {
	var (
		record        models.Record
		codeHash      sql.NullString
		expiresAt     sql.NullTime
		verifiedAt    sql.NullTime
		verifiedUntil sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT workspace_id, session_id, subject_id, channel, contact, code_hash,
		        expires_at, level, attempt_count, verified_at, verified_until, updated_at
		 FROM session_verifications
		 WHERE workspace_id = $1 AND session_id = $2`,
		workspaceID, sessionID,
	).Scan(
		&record.WorkspaceID, &record.SessionID, &record.SubjectID, &record.Channel,
		&record.Contact, &codeHash, &expiresAt, &record.Level, &record.AttemptCount,
		&verifiedAt, &verifiedUntil, &record.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select verification: %w", err)
	}

	record.CodeHash = codeHash.String
	record.ExpiresAt = expiresAt.Time
	record.VerifiedAt = verifiedAt.Time
	record.VerifiedUntil = verifiedUntil.Time
	return &record, nil
}

// Put replaces the session's row wholesale.
func (s *PostgresStore) Put(ctx context.Context, record *models.Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_verifications
		     (workspace_id, session_id, subject_id, channel, contact, code_hash,
		      expires_at, level, attempt_count, verified_at, verified_until, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (workspace_id, session_id) DO UPDATE SET
		     subject_id     = EXCLUDED.subject_id,
		     channel        = EXCLUDED.channel,
		     contact        = EXCLUDED.contact,
		     code_hash      = EXCLUDED.code_hash,
		     expires_at     = EXCLUDED.expires_at,
		     level          = EXCLUDED.level,
		     attempt_count  = EXCLUDED.attempt_count,
		     verified_at    = EXCLUDED.verified_at,
		     verified_until = EXCLUDED.verified_until,
		     updated_at     = EXCLUDED.updated_at`,
		record.WorkspaceID, record.SessionID, record.SubjectID, record.Channel,
		record.Contact, record.CodeHash, nullableTime(record.ExpiresAt), record.Level,
		record.AttemptCount, nullableTime(record.VerifiedAt), nullableTime(record.VerifiedUntil),
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("upsert verification: %w", err)
	}
	return nil
}

// SetLevel updates the level, optionally clearing the code hash.
func (s *PostgresStore) SetLevel(ctx context.Context, workspaceID, sessionID string, level models.Level, clearCode bool) error {
	query := `UPDATE session_verifications SET level = $3, updated_at = $4
	          WHERE workspace_id = $1 AND session_id = $2`
	if clearCode {
		query = `UPDATE session_verifications SET level = $3, updated_at = $4, code_hash = NULL
		         WHERE workspace_id = $1 AND session_id = $2`
	}
	if _, err := s.db.ExecContext(ctx, query, workspaceID, sessionID, level, time.Now()); err != nil {
		return fmt.Errorf("update verification level: %w", err)
	}
	return nil
}

// RecordAttempt persists a failed attempt count.
func (s *PostgresStore) RecordAttempt(ctx context.Context, workspaceID, sessionID string, attempts int, level models.Level) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE session_verifications SET attempt_count = $3, level = $4, updated_at = $5
		 WHERE workspace_id = $1 AND session_id = $2`,
		workspaceID, sessionID, attempts, level, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("record verification attempt: %w", err)
	}
	return nil
}

// MarkVerified flips the row to verified.
func (s *PostgresStore) MarkVerified(ctx context.Context, workspaceID, sessionID string, at, until time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE session_verifications
		 SET level = $3, code_hash = NULL, attempt_count = 0,
		     verified_at = $4, verified_until = $5, updated_at = $6
		 WHERE workspace_id = $1 AND session_id = $2`,
		workspaceID, sessionID, models.LevelVerified, at, until, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}
	return nil
}

// RewriteSubject moves rows from one subject id to another.
func (s *PostgresStore) RewriteSubject(ctx context.Context, workspaceID, oldID, newID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE session_verifications SET subject_id = $3, updated_at = $4
		 WHERE workspace_id = $1 AND subject_id = $2`,
		workspaceID, oldID, newID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("rewrite verification subject: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
