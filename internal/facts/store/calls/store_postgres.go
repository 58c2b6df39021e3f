package calls

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"recall/internal/facts/models"
)

// PostgresStore implements Store against the calls and call_summaries
// tables.
//
// Schema:
//
//	CREATE TABLE calls (
//	    workspace_id TEXT NOT NULL,
//	    call_id      TEXT NOT NULL,
//	    subject_id   TEXT NOT NULL,
//	    agent_id     TEXT,
//	    transcript   TEXT,
//	    created_at   TIMESTAMPTZ NOT NULL,
//	    PRIMARY KEY (workspace_id, call_id)
//	);
//
//	CREATE TABLE call_summaries (
//	    workspace_id TEXT NOT NULL,
//	    call_id      TEXT NOT NULL,
//	    subject_id   TEXT NOT NULL,
//	    summary      TEXT NOT NULL,
//	    sentiment    TEXT,
//	    outcome      TEXT,
//	    action_items TEXT[],
//	    created_at   TIMESTAMPTZ NOT NULL
//	);
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a Postgres-backed call store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// InsertCall records a call, ignoring duplicates by call id.
func (s *PostgresStore) InsertCall(ctx context.Context, call models.Call) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO calls (workspace_id, call_id, subject_id, agent_id, transcript, created_at)
		 VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6)
		 ON CONFLICT (workspace_id, call_id) DO NOTHING`,
		call.WorkspaceID, call.CallID, call.SubjectID, call.AgentID, call.Transcript, call.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert call: %w", err)
	}
	return nil
}

// InsertSummary records one call's summary row.
func (s *PostgresStore) InsertSummary(ctx context.Context, summary models.CallSummary) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO call_summaries (workspace_id, call_id, subject_id, summary, sentiment, outcome, action_items, created_at)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8)`,
		summary.WorkspaceID, summary.CallID, summary.SubjectID, summary.Summary,
		summary.Sentiment, summary.Outcome, pq.Array(summary.ActionItems), summary.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert call summary: %w", err)
	}
	return nil
}

// RecentSummaries returns the subject's latest summaries.
func (s *PostgresStore) RecentSummaries(ctx context.Context, workspaceID, subjectID string, limit int) ([]models.CallSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT call_id, summary, sentiment, outcome, action_items, created_at
		 FROM call_summaries
		 WHERE workspace_id = $1 AND subject_id = $2
		 ORDER BY created_at DESC
		 LIMIT $3`,
		workspaceID, subjectID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select call summaries: %w", err)
	}
	defer rows.Close()

	var summaries []models.CallSummary
	for rows.Next() {
		var (
			summary   models.CallSummary
			sentiment sql.NullString
			outcome   sql.NullString
		)
		if err := rows.Scan(&summary.CallID, &summary.Summary, &sentiment, &outcome,
			pq.Array(&summary.ActionItems), &summary.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan call summary: %w", err)
		}
		summary.WorkspaceID = workspaceID
		summary.SubjectID = subjectID
		summary.Sentiment = sentiment.String
		summary.Outcome = outcome.String
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

// RewriteSubject moves calls and summaries to a new subject id.
func (s *PostgresStore) RewriteSubject(ctx context.Context, workspaceID, oldID, newID string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE calls SET subject_id = $3 WHERE workspace_id = $1 AND subject_id = $2`,
		workspaceID, oldID, newID,
	); err != nil {
		return fmt.Errorf("rewrite call subject: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE call_summaries SET subject_id = $3 WHERE workspace_id = $1 AND subject_id = $2`,
		workspaceID, oldID, newID,
	); err != nil {
		return fmt.Errorf("rewrite call summary subject: %w", err)
	}
	return nil
}
