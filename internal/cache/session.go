package cache

import (
	"strings"
	"sync"
	"time"
)

// SessionCache is the per-process session tier: payloads keyed by
// (workspace, session) with a short TTL. Expired entries are dropped on
// read; there is no background sweeper.
type SessionCache[T any] struct {
	mu      sync.RWMutex
	entries map[string]Entry[T]
	ttl     time.Duration
	now     func() time.Time
}

// NewSessionCache creates a session-scope cache with the given TTL.
func NewSessionCache[T any](ttl time.Duration) *SessionCache[T] {
	return &SessionCache[T]{
		entries: make(map[string]Entry[T]),
		ttl:     ttl,
		now:     time.Now,
	}
}

func sessionKey(workspaceID, sessionID string) string {
	return workspaceID + "::" + sessionID
}

// Get returns the cached payload for the session, if fresh.
func (c *SessionCache[T]) Get(workspaceID, sessionID string) (T, bool) {
	key := sessionKey(workspaceID, sessionID)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		var zero T
		return zero, false
	}
	if entry.Expired(c.ttl, c.now()) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		var zero T
		return zero, false
	}
	return entry.Payload, true
}

// Put stores a payload for the session, stamped now.
func (c *SessionCache[T]) Put(workspaceID, sessionID string, payload T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[sessionKey(workspaceID, sessionID)] = Entry[T]{Payload: payload, CachedAt: c.now()}
}

// Invalidate drops the entry for one session.
func (c *SessionCache[T]) Invalidate(workspaceID, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, sessionKey(workspaceID, sessionID))
}

// InvalidateFunc drops every workspace entry whose payload matches.
// Used to evict session snapshots when their subject's data changes.
func (c *SessionCache[T]) InvalidateFunc(workspaceID string, match func(T) bool) {
	prefix := workspaceID + "::"

	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.entries {
		if strings.HasPrefix(key, prefix) && match(entry.Payload) {
			delete(c.entries, key)
		}
	}
}

// setNow overrides the clock, for tests.
func (c *SessionCache[T]) setNow(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}
