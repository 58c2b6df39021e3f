// Package sessionctx tracks per-session conversational context: the
// channel mode, the subject confirmed for this session, and any pending
// handoff reason. Updates are read-modify-upsert with session-tier
// caching.
package sessionctx

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"recall/internal/cache"
)

// Context is one session's conversational context.
type Context struct {
	ChannelMode     string    `json:"channel_mode,omitempty"`
	VerifiedSubject string    `json:"verified_subject,omitempty"`
	HandoffReason   string    `json:"handoff_reason,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Update carries the fields to change; nil fields are left untouched.
type Update struct {
	ChannelMode     *string `json:"channel_mode"`
	VerifiedSubject *string `json:"verified_subject"`
	HandoffReason   *string `json:"handoff_reason"`
}

// Empty reports whether the update changes nothing.
func (u Update) Empty() bool {
	return u.ChannelMode == nil && u.VerifiedSubject == nil && u.HandoffReason == nil
}

// Store persists session contexts. Get returns nil when absent.
type Store interface {
	Get(ctx context.Context, workspaceID, sessionID string) (*Context, error)
	Put(ctx context.Context, workspaceID, sessionID string, sc Context) error
}

// Service applies context updates through the session cache.
type Service struct {
	store  Store
	cache  *cache.SessionCache[Context]
	logger *slog.Logger
}

// New creates the session context service.
func New(store Store, contexts *cache.SessionCache[Context], logger *slog.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("session context store is required")
	}
	if contexts == nil {
		return nil, errors.New("context cache is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{store: store, cache: contexts, logger: logger}, nil
}

// Get returns the session's context, reading through the cache. A missing
// row reads as the zero context.
func (s *Service) Get(ctx context.Context, workspaceID, sessionID string) (Context, error) {
	if cached, ok := s.cache.Get(workspaceID, sessionID); ok {
		return cached, nil
	}

	stored, err := s.store.Get(ctx, workspaceID, sessionID)
	if err != nil {
		return Context{}, err
	}
	if stored == nil {
		return Context{}, nil
	}
	s.cache.Put(workspaceID, sessionID, *stored)
	return *stored, nil
}

// Apply merges an update into the session's context and persists it.
func (s *Service) Apply(ctx context.Context, workspaceID, sessionID string, update Update) (Context, error) {
	current, err := s.Get(ctx, workspaceID, sessionID)
	if err != nil {
		return Context{}, err
	}
	if update.Empty() {
		return current, nil
	}

	if update.ChannelMode != nil {
		current.ChannelMode = *update.ChannelMode
	}
	if update.VerifiedSubject != nil {
		current.VerifiedSubject = *update.VerifiedSubject
	}
	if update.HandoffReason != nil {
		current.HandoffReason = *update.HandoffReason
	}
	current.UpdatedAt = time.Now()

	if err := s.store.Put(ctx, workspaceID, sessionID, current); err != nil {
		return Context{}, err
	}
	s.cache.Put(workspaceID, sessionID, current)

	s.logger.DebugContext(ctx, "session context updated",
		"session_id", sessionID,
		"channel_mode", current.ChannelMode,
		"handoff", current.HandoffReason != "",
	)
	return current, nil
}

// NewContextCache builds the session-tier cache for contexts.
func NewContextCache(ttl time.Duration) *cache.SessionCache[Context] {
	return cache.NewSessionCache[Context](ttl)
}
