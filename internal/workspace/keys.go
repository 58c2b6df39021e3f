// Package workspace holds per-workspace credentials. API keys are stored
// as bcrypt hashes; plaintext keys exist only in the caller's hands.
package workspace

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// HashKey bcrypt-hashes a plaintext API key for storage.
func HashKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash api key: %w", err)
	}
	return string(hash), nil
}

// InMemoryKeyStore keeps workspace key hashes in a map.
type InMemoryKeyStore struct {
	mu     sync.RWMutex
	hashes map[string]string
}

// NewInMemoryKeyStore creates an empty in-memory key store.
func NewInMemoryKeyStore() *InMemoryKeyStore {
	return &InMemoryKeyStore{hashes: make(map[string]string)}
}

// Set stores a key hash for a workspace.
func (s *InMemoryKeyStore) Set(workspaceID, secretHash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashes[workspaceID] = secretHash
}

// SecretHash returns the workspace's stored key hash.
func (s *InMemoryKeyStore) SecretHash(_ context.Context, workspaceID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hash, ok := s.hashes[workspaceID]
	return hash, ok, nil
}

// PostgresKeyStore reads workspace key hashes from the api_keys table:
//
//	CREATE TABLE api_keys (
//	    workspace_id TEXT PRIMARY KEY,
//	    secret_hash  TEXT NOT NULL,
//	    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
type PostgresKeyStore struct {
	db *sql.DB
}

// NewPostgresKeyStore creates a store backed by the given database.
func NewPostgresKeyStore(db *sql.DB) *PostgresKeyStore {
	return &PostgresKeyStore{db: db}
}

// SecretHash returns the workspace's stored key hash.
func (s *PostgresKeyStore) SecretHash(ctx context.Context, workspaceID string) (string, bool, error) {
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT secret_hash FROM api_keys WHERE workspace_id = $1`,
		workspaceID,
	).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup api key: %w", err)
	}
	return hash, true, nil
}
