package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"gigboard/internal/model"
)

const (
	// SnapshotCachePrefix is the key prefix for per-thread snapshot caches
	SnapshotCachePrefix = "snapshot:thread:"

	// SnapshotCacheTTL is the TTL for cached snapshots (refreshed on access)
	SnapshotCacheTTL = 24 * time.Hour
)

// SnapshotCache defines the interface for thread snapshot caching.
// Using an interface enables testing with mocks and potential future backends.
type SnapshotCache interface {
	// Get retrieves the cached snapshot for a thread.
	// Returns (nil, nil) on a cache miss.
	Get(ctx context.Context, threadID string) (*model.Snapshot, error)

	// Set stores the snapshot for a thread with TTL.
	Set(ctx context.Context, snapshot *model.Snapshot) error

	// Invalidate removes a thread's cached snapshot.
	// The next read rebuilds it from the database.
	Invalidate(ctx context.Context, threadID string) error
}

// RedisSnapshotCache implements SnapshotCache using Redis string values.
type RedisSnapshotCache struct {
	client *redis.Client
}

// NewSnapshotCache creates a new SnapshotCache backed by Redis.
func NewSnapshotCache(client *redis.Client) SnapshotCache {
	return &RedisSnapshotCache{client: client}
}

// snapshotKey returns the Redis key for a thread's snapshot cache.
func snapshotKey(threadID string) string {
	return SnapshotCachePrefix + threadID
}

// Get retrieves the cached snapshot. A miss is not an error.
func (c *RedisSnapshotCache) Get(ctx context.Context, threadID string) (*model.Snapshot, error) {
	key := snapshotKey(threadID)
	startTime := time.Now()

	raw, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		log.Printf("[SnapshotCache] Get: thread=%s MISS", threadID)
		return nil, nil
	}
	if err != nil {
		log.Printf("[SnapshotCache] Get FAILED: thread=%s err=%v", threadID, err)
		return nil, fmt.Errorf("get snapshot: %w", err)
	}

	var snap model.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		// Corrupt entry: drop it and treat as a miss so the caller rebuilds.
		log.Printf("[SnapshotCache] Get decode error: thread=%s err=%v (invalidating)", threadID, err)
		if err := c.Invalidate(ctx, threadID); err != nil {
			log.Printf("[SnapshotCache] Drop corrupt entry FAILED: thread=%s err=%v", threadID, err)
		}
		return nil, nil
	}

	// Refresh TTL on access
	c.client.Expire(ctx, key, SnapshotCacheTTL)

	log.Printf("[SnapshotCache] Get OK: thread=%s comments=%d duration=%v",
		threadID, len(snap.Comments), time.Since(startTime))
	return &snap, nil
}

// Set stores the snapshot with TTL.
func (c *RedisSnapshotCache) Set(ctx context.Context, snapshot *model.Snapshot) error {
	key := snapshotKey(snapshot.ThreadID)
	startTime := time.Now()

	raw, err := json.Marshal(snapshot)
	if err != nil {
		log.Printf("[SnapshotCache] Set FAILED: thread=%s err=%v", snapshot.ThreadID, err)
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := c.client.Set(ctx, key, raw, SnapshotCacheTTL).Err(); err != nil {
		log.Printf("[SnapshotCache] Set FAILED: thread=%s err=%v", snapshot.ThreadID, err)
		return fmt.Errorf("set snapshot: %w", err)
	}

	log.Printf("[SnapshotCache] Set OK: thread=%s comments=%d duration=%v",
		snapshot.ThreadID, len(snapshot.Comments), time.Since(startTime))
	return nil
}

// Invalidate removes a thread's cached snapshot.
func (c *RedisSnapshotCache) Invalidate(ctx context.Context, threadID string) error {
	key := snapshotKey(threadID)

	if err := c.client.Del(ctx, key).Err(); err != nil {
		log.Printf("[SnapshotCache] Invalidate FAILED: thread=%s err=%v", threadID, err)
		return fmt.Errorf("invalidate snapshot: %w", err)
	}

	log.Printf("[SnapshotCache] Invalidate OK: thread=%s", threadID)
	return nil
}
