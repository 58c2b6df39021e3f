package policies

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"recall/internal/facts/policy"
	"recall/internal/schema"
)

// PostgresStore implements Store against workspace_fact_policies.
//
// Schema:
//
//	CREATE TABLE workspace_fact_policies (
//	    workspace_id    TEXT NOT NULL,
//	    fact_type       TEXT NOT NULL,
//	    enabled         BOOLEAN NOT NULL DEFAULT TRUE,
//	    max_per_subject INT,
//	    config_json     JSONB,
//	    PRIMARY KEY (workspace_id, fact_type)
//	);
//
// config_json holds optional {"keywords": [...], "regex": "..."}.
// The table is optional; a missing table reads as no overrides.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a Postgres-backed policy store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Overrides returns a workspace's override rows.
func (s *PostgresStore) Overrides(ctx context.Context, workspaceID string) ([]policy.Override, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT fact_type, enabled, COALESCE(max_per_subject, 0), config_json
		 FROM workspace_fact_policies
		 WHERE workspace_id = $1`,
		workspaceID,
	)
	if err != nil {
		if schema.IsUndefinedTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("select fact policies: %w", err)
	}
	defer rows.Close()

	var overrides []policy.Override
	for rows.Next() {
		var (
			o      policy.Override
			config []byte
		)
		if err := rows.Scan(&o.FactType, &o.Enabled, &o.MaxPerSubject, &config); err != nil {
			return nil, fmt.Errorf("scan fact policy: %w", err)
		}
		if len(config) > 0 {
			var parsed struct {
				Keywords []string `json:"keywords"`
				Regex    string   `json:"regex"`
			}
			// Malformed config rows fall back to the defaults.
			if json.Unmarshal(config, &parsed) == nil {
				o.Keywords = parsed.Keywords
				o.Regex = parsed.Regex
			}
		}
		overrides = append(overrides, o)
	}
	return overrides, rows.Err()
}
