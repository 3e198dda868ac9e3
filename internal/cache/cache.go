// Package cache wraps a Redis client for the two caches spec.md §5
// names explicitly: the per-rack effective-threshold cache and the
// maintenance suppressed-set cache. Both are invalidated synchronously
// on the mutation that changes their backing store. The effective-
// threshold entries also carry a TTL as a safety net, not the
// invalidation mechanism; the suppressed set is stored without an
// expiry and changes only on invalidation or rewrite.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Cache struct {
	client *redis.Client
}

func New(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Connect dials Redis from a URL such as redis://host:6379/0.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

const effectiveThresholdTTL = 30 * time.Second // within the <=60s bound of spec.md §4.1

func effectiveKey(rackID string) string { return "thresholds:effective:" + rackID }

// GetEffective returns a cached effective-threshold map for rackID, or
// ok=false on a cache miss.
func (c *Cache) GetEffective(ctx context.Context, rackID string) (map[string]float64, bool) {
	raw, err := c.client.Get(ctx, effectiveKey(rackID)).Bytes()
	if err != nil {
		return nil, false
	}
	var out map[string]float64
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false
	}
	return out, true
}

// PutEffective caches the effective-threshold map for rackID.
func (c *Cache) PutEffective(ctx context.Context, rackID string, effective map[string]float64) error {
	data, err := json.Marshal(effective)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, effectiveKey(rackID), data, effectiveThresholdTTL).Err()
}

// InvalidateEffective drops the cached effective set for rackID (and,
// when rackID is empty, every rack — used when a global threshold
// mutation could change every rack's effective set).
func (c *Cache) InvalidateEffective(ctx context.Context, rackID string) error {
	if rackID != "" {
		return c.client.Del(ctx, effectiveKey(rackID)).Err()
	}
	return c.deleteByPattern(ctx, "thresholds:effective:*")
}

const suppressedSetKey = "maintenance:suppressed"

// emptySetSentinel stands in for a cached-but-empty suppressed set.
// Redis deletes a set the moment its last member is removed, so an
// actually-empty SADD/SREM pair leaves no key behind and SuppressedSet
// would wrongly report a cache miss; a sentinel member keeps the key
// present (and is never mistaken for a rack id) so the empty case
// still cache-hits.
const emptySetSentinel = "\x00empty\x00"

// SuppressedSet returns the current suppressed rack_id set, or
// ok=false on a cache miss (caller should rebuild from storage).
func (c *Cache) SuppressedSet(ctx context.Context) (map[string]bool, bool) {
	exists, err := c.client.Exists(ctx, suppressedSetKey).Result()
	if err != nil || exists == 0 {
		return nil, false
	}
	members, err := c.client.SMembers(ctx, suppressedSetKey).Result()
	if err != nil {
		return nil, false
	}
	out := make(map[string]bool, len(members))
	for _, m := range members {
		if m == emptySetSentinel {
			continue
		}
		out[m] = true
	}
	return out, true
}

// PutSuppressedSet rewrites the cached suppressed set atomically.
func (c *Cache) PutSuppressedSet(ctx context.Context, rackIDs []string) error {
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, suppressedSetKey)
	if len(rackIDs) > 0 {
		members := make([]interface{}, len(rackIDs))
		for i, id := range rackIDs {
			members[i] = id
		}
		pipe.SAdd(ctx, suppressedSetKey, members...)
	} else {
		pipe.SAdd(ctx, suppressedSetKey, emptySetSentinel)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// InvalidateSuppressedSet forces the next SuppressedSet call to miss.
func (c *Cache) InvalidateSuppressedSet(ctx context.Context) error {
	return c.client.Del(ctx, suppressedSetKey).Err()
}

func (c *Cache) deleteByPattern(ctx context.Context, pattern string) error {
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
