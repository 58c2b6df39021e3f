// Package cache implements the three read tiers in front of the database:
// a per-process session tier, a per-process subject tier, and a shared
// Redis tier. Entries are immutable snapshots stamped with their creation
// time; staleness is always judged against that stamp, never refreshed.
package cache

import "time"

// Tier names used for metrics labels.
const (
	TierSession     = "session"
	TierSubject     = "subject"
	TierDistributed = "distributed"
)

// Entry is a cached payload with its creation time.
type Entry[T any] struct {
	Payload  T
	CachedAt time.Time
}

// Expired reports whether the entry is older than ttl at the given time.
func (e Entry[T]) Expired(ttl time.Duration, now time.Time) bool {
	return now.Sub(e.CachedAt) > ttl
}

// Stats receives hit/miss signals; *metrics.Metrics satisfies it.
type Stats interface {
	CacheHit(tier string)
	CacheMiss(tier string)
}

type nopStats struct{}

func (nopStats) CacheHit(string)  {}
func (nopStats) CacheMiss(string) {}

// NopStats discards all cache telemetry.
var NopStats Stats = nopStats{}
