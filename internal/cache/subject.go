package cache

import (
	"sync"
	"time"
)

// SubjectCache is the per-process subject tier: a bucket per
// (workspace, subject) holding entries under discriminated keys such as
// "agent::query::topK::level". Invalidation drops the whole bucket so a
// write can never leave a stale variant behind.
type SubjectCache[T any] struct {
	mu      sync.RWMutex
	buckets map[string]map[string]Entry[T]
	ttl     time.Duration
	now     func() time.Time
}

// NewSubjectCache creates a subject-scope cache with the given TTL.
func NewSubjectCache[T any](ttl time.Duration) *SubjectCache[T] {
	return &SubjectCache[T]{
		buckets: make(map[string]map[string]Entry[T]),
		ttl:     ttl,
		now:     time.Now,
	}
}

func bucketKey(workspaceID, subjectID string) string {
	return workspaceID + "::" + subjectID
}

// Get returns the cached payload under the discriminated key, if fresh.
func (c *SubjectCache[T]) Get(workspaceID, subjectID, key string) (T, bool) {
	bk := bucketKey(workspaceID, subjectID)

	c.mu.RLock()
	entry, ok := c.buckets[bk][key]
	c.mu.RUnlock()

	if !ok {
		var zero T
		return zero, false
	}
	if entry.Expired(c.ttl, c.now()) {
		c.mu.Lock()
		if bucket := c.buckets[bk]; bucket != nil {
			delete(bucket, key)
		}
		c.mu.Unlock()
		var zero T
		return zero, false
	}
	return entry.Payload, true
}

// Put stores a payload under the discriminated key, stamped now.
func (c *SubjectCache[T]) Put(workspaceID, subjectID, key string, payload T) {
	bk := bucketKey(workspaceID, subjectID)

	c.mu.Lock()
	defer c.mu.Unlock()
	bucket := c.buckets[bk]
	if bucket == nil {
		bucket = make(map[string]Entry[T])
		c.buckets[bk] = bucket
	}
	bucket[key] = Entry[T]{Payload: payload, CachedAt: c.now()}
}

// InvalidateSubject drops every entry for the subject.
func (c *SubjectCache[T]) InvalidateSubject(workspaceID, subjectID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.buckets, bucketKey(workspaceID, subjectID))
}

// setNow overrides the clock, for tests.
func (c *SubjectCache[T]) setNow(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}
