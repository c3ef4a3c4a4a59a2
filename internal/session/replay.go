package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/intelogroup/clixen-16ace7b7-sub001/model"
)

// ReplayCache stores recorded outcomes keyed by session and sequence number
// so redelivered messages return the original reply instead of re-running
// side effects. The key format is "replay:{sessionId}:{seq}".
type ReplayCache interface {
	// Get looks up the outcome recorded for a sequence number.
	Get(ctx context.Context, sessionID string, seq uint64) (*model.Outcome, bool, error)

	// Put records an outcome for a sequence number with a TTL.
	Put(ctx context.Context, sessionID string, seq uint64, outcome model.Outcome, ttl time.Duration) error
}

// FormatReplayKey builds the standard replay cache key.
func FormatReplayKey(sessionID string, seq uint64) string {
	return fmt.Sprintf("replay:%s:%d", sessionID, seq)
}

// --- MemoryReplayCache ---

// MemoryReplayCache is an in-memory ReplayCache with TTL support. Suitable
// for testing and single-instance deployments.
type MemoryReplayCache struct {
	mu      sync.RWMutex
	entries map[string]*replayEntry
}

type replayEntry struct {
	outcome   model.Outcome
	expiresAt time.Time
}

// NewMemoryReplayCache creates a new in-memory replay cache.
func NewMemoryReplayCache() *MemoryReplayCache {
	return &MemoryReplayCache{
		entries: make(map[string]*replayEntry),
	}
}

// Get looks up a recorded outcome.
func (c *MemoryReplayCache) Get(_ context.Context, sessionID string, seq uint64) (*model.Outcome, bool, error) {
	key := FormatReplayKey(sessionID, seq)

	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		return nil, false, nil
	}

	// Check TTL.
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false, nil
	}

	outcome := entry.outcome
	return &outcome, true, nil
}

// Put records an outcome with a TTL.
func (c *MemoryReplayCache) Put(_ context.Context, sessionID string, seq uint64, outcome model.Outcome, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[FormatReplayKey(sessionID, seq)] = &replayEntry{
		outcome:   outcome,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// Len returns the number of entries (including expired ones). For testing.
func (c *MemoryReplayCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// --- RedisReplayCache ---

// RedisReplayCache is a Redis-backed ReplayCache with TTL.
type RedisReplayCache struct {
	client redis.Cmdable
}

// NewRedisReplayCache creates a new Redis-backed replay cache.
func NewRedisReplayCache(client redis.Cmdable) *RedisReplayCache {
	return &RedisReplayCache{client: client}
}

// Get looks up a recorded outcome in Redis.
func (c *RedisReplayCache) Get(ctx context.Context, sessionID string, seq uint64) (*model.Outcome, bool, error) {
	key := FormatReplayKey(sessionID, seq)

	raw, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %q: %w", key, err)
	}

	var outcome model.Outcome
	if err := json.Unmarshal(raw, &outcome); err != nil {
		return nil, false, fmt.Errorf("unmarshal replay entry %q: %w", key, err)
	}
	return &outcome, true, nil
}

// Put records an outcome in Redis with a TTL.
func (c *RedisReplayCache) Put(ctx context.Context, sessionID string, seq uint64, outcome model.Outcome, ttl time.Duration) error {
	key := FormatReplayKey(sessionID, seq)

	data, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("marshal replay entry: %w", err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// HealthCheck verifies Redis connectivity for the readiness endpoint.
func (c *RedisReplayCache) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
