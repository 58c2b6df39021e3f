package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"recall/internal/identity/models"
)

// PostgresStore implements Store against the session_identity table.
//
// Schema:
//
//	CREATE TABLE session_identity (
//	    workspace_id TEXT NOT NULL,
//	    session_id   TEXT NOT NULL,
//	    subject_id   TEXT,
//	    phone        TEXT,
//	    email        TEXT,
//	    channel_mode TEXT,
//	    metadata     JSONB,
//	    updated_at   TIMESTAMPTZ NOT NULL,
//	    PRIMARY KEY (workspace_id, session_id)
//	);
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a Postgres-backed session identity store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Get returns the session identity, or nil when absent.
func (s *PostgresStore) Get(ctx context.Context, workspaceID, sessionID string) (*models.SessionIdentity, error) {
	var (
		identity models.SessionIdentity
		subject  sql.NullString
		phone    sql.NullString
		email    sql.NullString
		channel  sql.NullString
		metadata []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT workspace_id, session_id, subject_id, phone, email, channel_mode, metadata, updated_at
		 FROM session_identity
		 WHERE workspace_id = $1 AND session_id = $2`,
		workspaceID, sessionID,
	).Scan(&identity.WorkspaceID, &identity.SessionID, &subject, &phone, &email, &channel, &metadata, &identity.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select session identity: %w", err)
	}

	identity.SubjectID = subject.String
	identity.Phone = phone.String
	identity.Email = email.String
	identity.ChannelMode = channel.String
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &identity.Metadata); err != nil {
			return nil, fmt.Errorf("decode session identity metadata: %w", err)
		}
	}
	return &identity, nil
}

// Upsert merges the identity over any existing row. COALESCE keeps
// established fields when the new row leaves them empty.
func (s *PostgresStore) Upsert(ctx context.Context, identity *models.SessionIdentity) error {
	var metadata []byte
	if identity.Metadata != nil {
		var err error
		metadata, err = json.Marshal(identity.Metadata)
		if err != nil {
			return fmt.Errorf("encode session identity metadata: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_identity (workspace_id, session_id, subject_id, phone, email, channel_mode, metadata, updated_at)
		 VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7, $8)
		 ON CONFLICT (workspace_id, session_id) DO UPDATE SET
		     subject_id   = COALESCE(NULLIF(EXCLUDED.subject_id, ''), session_identity.subject_id),
		     phone        = COALESCE(NULLIF(EXCLUDED.phone, ''), session_identity.phone),
		     email        = COALESCE(NULLIF(EXCLUDED.email, ''), session_identity.email),
		     channel_mode = COALESCE(NULLIF(EXCLUDED.channel_mode, ''), session_identity.channel_mode),
		     metadata     = COALESCE(EXCLUDED.metadata, session_identity.metadata),
		     updated_at   = EXCLUDED.updated_at`,
		identity.WorkspaceID, identity.SessionID, identity.SubjectID, identity.Phone,
		identity.Email, identity.ChannelMode, nullableJSON(metadata), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("upsert session identity: %w", err)
	}
	return nil
}

// Seed anchors the session to a subject if it has none yet.
func (s *PostgresStore) Seed(ctx context.Context, workspaceID, sessionID, subjectID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_identity (workspace_id, session_id, subject_id, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (workspace_id, session_id) DO UPDATE SET
		     subject_id = COALESCE(session_identity.subject_id, EXCLUDED.subject_id),
		     updated_at = EXCLUDED.updated_at`,
		workspaceID, sessionID, subjectID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("seed session identity: %w", err)
	}
	return nil
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
