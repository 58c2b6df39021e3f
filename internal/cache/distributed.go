package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const distributedKeyPrefix = "recall:cache:"

// Distributed is the shared cache tier. Payloads are opaque JSON; entries
// live in a per-subject bucket so invalidation clears every variant at
// once.
type Distributed interface {
	Get(ctx context.Context, workspaceID, subjectID, key string) (json.RawMessage, bool, error)
	Put(ctx context.Context, workspaceID, subjectID, key string, payload json.RawMessage) error
	Invalidate(ctx context.Context, workspaceID, subjectID string) error
}

// envelope carries a payload with its creation stamp, so freshness is
// judged per entry even though the bucket's Redis TTL slides on writes.
type envelope struct {
	Payload  json.RawMessage `json:"payload"`
	CachedAt time.Time       `json:"cached_at"`
}

// RedisDistributed implements Distributed on a Redis hash per subject.
type RedisDistributed struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisDistributed creates the Redis tier with the given entry TTL.
func NewRedisDistributed(client *redis.Client, ttl time.Duration) *RedisDistributed {
	return &RedisDistributed{client: client, ttl: ttl, now: time.Now}
}

func distributedKey(workspaceID, subjectID string) string {
	return distributedKeyPrefix + workspaceID + ":" + subjectID
}

// Get fetches one entry, dropping it if stale.
func (d *RedisDistributed) Get(ctx context.Context, workspaceID, subjectID, key string) (json.RawMessage, bool, error) {
	bucket := distributedKey(workspaceID, subjectID)

	raw, err := d.client.HGet(ctx, bucket, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("distributed cache get: %w", err)
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		// Unreadable entries are treated as absent and cleaned up.
		d.client.HDel(ctx, bucket, key)
		return nil, false, nil
	}
	if d.now().Sub(env.CachedAt) > d.ttl {
		d.client.HDel(ctx, bucket, key)
		return nil, false, nil
	}
	return env.Payload, true, nil
}

// Put stores one entry and refreshes the bucket's expiry.
func (d *RedisDistributed) Put(ctx context.Context, workspaceID, subjectID, key string, payload json.RawMessage) error {
	bucket := distributedKey(workspaceID, subjectID)

	data, err := json.Marshal(envelope{Payload: payload, CachedAt: d.now()})
	if err != nil {
		return fmt.Errorf("distributed cache marshal: %w", err)
	}

	pipe := d.client.Pipeline()
	pipe.HSet(ctx, bucket, key, data)
	// Buckets outlive individual entries slightly so invalidation has
	// something to delete; entry freshness is checked on read.
	pipe.Expire(ctx, bucket, d.ttl*2)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("distributed cache put: %w", err)
	}
	return nil
}

// Invalidate clears every entry for the subject.
func (d *RedisDistributed) Invalidate(ctx context.Context, workspaceID, subjectID string) error {
	if err := d.client.Del(ctx, distributedKey(workspaceID, subjectID)).Err(); err != nil {
		return fmt.Errorf("distributed cache invalidate: %w", err)
	}
	return nil
}
