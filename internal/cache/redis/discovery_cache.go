package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/hourlyarb/internal/domain"
	"github.com/redis/go-redis/v9"
)

// DiscoveryCache implements domain.DiscoveryCache on Redis hashes so that
// several replicas share one discovery budget.
//
// Key schema:
//
//	discovery:{venue}:{asset} - hash with fields "date" and "data" (JSON entry)
type DiscoveryCache struct {
	c *Client
}

// NewDiscoveryCache creates a DiscoveryCache backed by the given Client.
func NewDiscoveryCache(c *Client) *DiscoveryCache {
	return &DiscoveryCache{c: c}
}

func (dc *DiscoveryCache) key(venue domain.Venue, asset string) string {
	return dc.c.Key("discovery:" + string(venue) + ":" + asset)
}

// Get returns the cached entry when it was fetched for date. An entry for any
// other date is deleted and reported as a miss.
func (dc *DiscoveryCache) Get(ctx context.Context, venue domain.Venue, asset, date string) (domain.DiscoveryEntry, bool, error) {
	key := dc.key(venue, asset)
	vals, err := dc.c.rdb.HMGet(ctx, key, "date", "data").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.DiscoveryEntry{}, false, nil
		}
		return domain.DiscoveryEntry{}, false, fmt.Errorf("redis: get discovery %s: %w", key, err)
	}

	cachedDate, _ := vals[0].(string)
	data, _ := vals[1].(string)
	if cachedDate == "" || data == "" {
		return domain.DiscoveryEntry{}, false, nil
	}
	if cachedDate != date {
		if err := dc.c.rdb.Del(ctx, key).Err(); err != nil {
			return domain.DiscoveryEntry{}, false, fmt.Errorf("redis: evict discovery %s: %w", key, err)
		}
		return domain.DiscoveryEntry{}, false, nil
	}

	var entry domain.DiscoveryEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return domain.DiscoveryEntry{}, false, fmt.Errorf("redis: unmarshal discovery %s: %w", key, err)
	}
	return entry, true, nil
}

// Put replaces the (venue, asset) entry and sets its TTL atomically.
func (dc *DiscoveryCache) Put(ctx context.Context, entry domain.DiscoveryEntry, ttl time.Duration) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("redis: marshal discovery %s/%s: %w", entry.Venue, entry.Asset, err)
	}

	key := dc.key(entry.Venue, entry.Asset)
	pipe := dc.c.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, "date", entry.Date, "data", data)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: put discovery %s: %w", key, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.DiscoveryCache = (*DiscoveryCache)(nil)
