package memories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"recall/internal/facts/models"
	"recall/internal/schema"
)

// PostgresStore implements Store against the memories table.
//
// Schema:
//
//	CREATE TABLE memories (
//	    workspace_id TEXT NOT NULL,
//	    subject_id   TEXT NOT NULL,
//	    agent_id     TEXT,
//	    fact         TEXT NOT NULL,
//	    confidence   DOUBLE PRECISION NOT NULL,
//	    fact_type    TEXT,            -- optional, probed
//	    updated_at   TIMESTAMPTZ NOT NULL
//	);
//	CREATE UNIQUE INDEX memories_dedupe
//	    ON memories (workspace_id, subject_id, lower(fact));
//
// fact_type is absent on older deployments; the capability probe keeps it
// out of every statement once a query proves it missing.
type PostgresStore struct {
	db       *sql.DB
	factType *schema.Probe
}

// NewPostgresStore creates a Postgres-backed fact store.
func NewPostgresStore(db *sql.DB, factType *schema.Probe) *PostgresStore {
	return &PostgresStore{db: db, factType: factType}
}

// Recent returns the subject's latest facts.
func (s *PostgresStore) Recent(ctx context.Context, workspaceID, subjectID string, limit int) ([]models.Fact, error) {
	return s.query(ctx, workspaceID, subjectID, "", "", limit, false)
}

// Search returns facts matching the query substring. LIKE wildcards in
// the query are stripped so callers cannot widen the match.
func (s *PostgresStore) Search(ctx context.Context, workspaceID, subjectID, query, agentID string, limit int) ([]models.Fact, error) {
	return s.query(ctx, workspaceID, subjectID, query, agentID, limit, true)
}

func (s *PostgresStore) query(ctx context.Context, workspaceID, subjectID, query, agentID string, limit int, filterAgent bool) ([]models.Fact, error) {
	like := ""
	if query != "" {
		cleaned := strings.NewReplacer("%", "", "_", "").Replace(query)
		like = "%" + cleaned + "%"
	}

	withType := s.factType.Supported(ctx)
	rows, err := s.selectFacts(ctx, workspaceID, subjectID, like, agentID, limit, filterAgent, withType)
	if err != nil && withType && schema.IsUndefinedColumn(err) {
		s.factType.MarkUnsupported()
		rows, err = s.selectFacts(ctx, workspaceID, subjectID, like, agentID, limit, filterAgent, false)
	}
	return rows, err
}

func (s *PostgresStore) selectFacts(ctx context.Context, workspaceID, subjectID, like, agentID string, limit int, filterAgent, withType bool) ([]models.Fact, error) {
	typeColumn := ""
	if withType {
		typeColumn = ", fact_type"
	}
	agentClause := ""
	if filterAgent {
		agentClause = " AND (agent_id IS NULL OR agent_id = $5)"
	}

	query := fmt.Sprintf(
		`SELECT fact, confidence, updated_at, agent_id%s
		 FROM memories
		 WHERE workspace_id = $1 AND subject_id = $2
		   AND ($3 = '' OR fact ILIKE $3)%s
		 ORDER BY updated_at DESC
		 LIMIT $4`,
		typeColumn, agentClause,
	)

	args := []any{workspaceID, subjectID, like, limit}
	if filterAgent {
		args = append(args, agentID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select facts: %w", err)
	}
	defer rows.Close()

	var facts []models.Fact
	for rows.Next() {
		var (
			fact     models.Fact
			agent    sql.NullString
			factType sql.NullString
		)
		dest := []any{&fact.Text, &fact.Confidence, &fact.UpdatedAt, &agent}
		if withType {
			dest = append(dest, &factType)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		fact.WorkspaceID = workspaceID
		fact.SubjectID = subjectID
		fact.AgentID = agent.String
		fact.Type = factType.String
		facts = append(facts, fact)
	}
	return facts, rows.Err()
}

// Insert writes the fact unless the text already exists for the subject.
func (s *PostgresStore) Insert(ctx context.Context, fact models.Fact) (bool, error) {
	withType := s.factType.Supported(ctx)
	wrote, err := s.insert(ctx, fact, withType)
	if err != nil && withType && schema.IsUndefinedColumn(err) {
		s.factType.MarkUnsupported()
		wrote, err = s.insert(ctx, fact, false)
	}
	return wrote, err
}

func (s *PostgresStore) insert(ctx context.Context, fact models.Fact, withType bool) (bool, error) {
	var (
		result sql.Result
		err    error
	)
	if withType {
		result, err = s.db.ExecContext(ctx,
			`INSERT INTO memories (workspace_id, subject_id, agent_id, fact, confidence, fact_type, updated_at)
			 VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)
			 ON CONFLICT (workspace_id, subject_id, lower(fact)) DO NOTHING`,
			fact.WorkspaceID, fact.SubjectID, fact.AgentID, fact.Text, fact.Confidence, fact.Type, fact.UpdatedAt,
		)
	} else {
		result, err = s.db.ExecContext(ctx,
			`INSERT INTO memories (workspace_id, subject_id, agent_id, fact, confidence, updated_at)
			 VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6)
			 ON CONFLICT (workspace_id, subject_id, lower(fact)) DO NOTHING`,
			fact.WorkspaceID, fact.SubjectID, fact.AgentID, fact.Text, fact.Confidence, fact.UpdatedAt,
		)
	}
	if err != nil {
		return false, fmt.Errorf("insert fact: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert fact rows affected: %w", err)
	}
	return affected > 0, nil
}

// CountByType counts the subject's facts of one type. Deployments without
// the column report zero, which disables type caps.
func (s *PostgresStore) CountByType(ctx context.Context, workspaceID, subjectID, factType string) (int, error) {
	if !s.factType.Supported(ctx) {
		return 0, nil
	}
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memories
		 WHERE workspace_id = $1 AND subject_id = $2 AND fact_type = $3`,
		workspaceID, subjectID, factType,
	).Scan(&count)
	if err != nil {
		if schema.IsUndefinedColumn(err) {
			s.factType.MarkUnsupported()
			return 0, nil
		}
		return 0, fmt.Errorf("count facts by type: %w", err)
	}
	return count, nil
}

// RewriteSubject moves a subject's facts under a new id. Rows whose text
// already exists under the new id are dropped rather than duplicated.
func (s *PostgresStore) RewriteSubject(ctx context.Context, workspaceID, oldID, newID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE memories SET subject_id = $3
		 WHERE workspace_id = $1 AND subject_id = $2
		   AND NOT EXISTS (
		       SELECT 1 FROM memories existing
		       WHERE existing.workspace_id = $1
		         AND existing.subject_id = $3
		         AND lower(existing.fact) = lower(memories.fact)
		   )`,
		workspaceID, oldID, newID,
	)
	if err != nil {
		return fmt.Errorf("rewrite fact subject: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`DELETE FROM memories WHERE workspace_id = $1 AND subject_id = $2`,
		workspaceID, oldID,
	)
	if err != nil {
		return fmt.Errorf("clear migrated facts: %w", err)
	}
	return nil
}
