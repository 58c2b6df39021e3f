package cache

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Hierarchy composes the subject tier with the distributed tier:
// read-through on get, write-both on put, clear-both on invalidate.
// Distributed failures degrade to a miss and are logged; they never fail
// the request.
type Hierarchy[T any] struct {
	local  *SubjectCache[T]
	dist   Distributed
	stats  Stats
	logger *slog.Logger
}

// NewHierarchy builds a hierarchy. dist may be nil when Redis is not
// configured, leaving the local tier on its own.
func NewHierarchy[T any](local *SubjectCache[T], dist Distributed, stats Stats, logger *slog.Logger) *Hierarchy[T] {
	if stats == nil {
		stats = NopStats
	}
	return &Hierarchy[T]{local: local, dist: dist, stats: stats, logger: logger}
}

// Get checks the local tier, then the distributed tier. A distributed hit
// repopulates the local tier so the next read stays in-process.
func (h *Hierarchy[T]) Get(ctx context.Context, workspaceID, subjectID, key string) (T, bool) {
	if payload, ok := h.local.Get(workspaceID, subjectID, key); ok {
		h.stats.CacheHit(TierSubject)
		return payload, true
	}
	h.stats.CacheMiss(TierSubject)

	var zero T
	if h.dist == nil {
		return zero, false
	}

	raw, ok, err := h.dist.Get(ctx, workspaceID, subjectID, key)
	if err != nil {
		h.logger.WarnContext(ctx, "distributed cache read failed",
			"subject_id", subjectID,
			"error", err.Error(),
		)
		h.stats.CacheMiss(TierDistributed)
		return zero, false
	}
	if !ok {
		h.stats.CacheMiss(TierDistributed)
		return zero, false
	}

	var payload T
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.logger.WarnContext(ctx, "distributed cache payload unreadable",
			"subject_id", subjectID,
			"error", err.Error(),
		)
		h.stats.CacheMiss(TierDistributed)
		return zero, false
	}

	h.stats.CacheHit(TierDistributed)
	h.local.Put(workspaceID, subjectID, key, payload)
	return payload, true
}

// Put stores the payload in both tiers. The distributed write is
// best-effort.
func (h *Hierarchy[T]) Put(ctx context.Context, workspaceID, subjectID, key string, payload T) {
	h.local.Put(workspaceID, subjectID, key, payload)

	if h.dist == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		h.logger.WarnContext(ctx, "cache payload marshal failed",
			"subject_id", subjectID,
			"error", err.Error(),
		)
		return
	}
	if err := h.dist.Put(ctx, workspaceID, subjectID, key, raw); err != nil {
		h.logger.WarnContext(ctx, "distributed cache write failed",
			"subject_id", subjectID,
			"error", err.Error(),
		)
	}
}

// Invalidate clears the subject in both tiers. The distributed clear is
// best-effort.
func (h *Hierarchy[T]) Invalidate(ctx context.Context, workspaceID, subjectID string) {
	h.local.InvalidateSubject(workspaceID, subjectID)

	if h.dist == nil {
		return
	}
	if err := h.dist.Invalidate(ctx, workspaceID, subjectID); err != nil {
		h.logger.WarnContext(ctx, "distributed cache invalidate failed",
			"subject_id", subjectID,
			"error", err.Error(),
		)
	}
}
