// Package memory provides in-process cache implementations.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/hourlyarb/internal/domain"
)

type discoveryKey struct {
	venue domain.Venue
	asset string
}

type discoveryItem struct {
	entry   domain.DiscoveryEntry
	expires time.Time
}

// DiscoveryCache keeps at most one discovery listing per (venue, asset). A
// listing is served only for the date it was fetched for and only until its
// TTL expires. It is safe for concurrent use; concurrent Puts are last writer
// wins.
type DiscoveryCache struct {
	mu    sync.Mutex
	items map[discoveryKey]discoveryItem
	now   func() time.Time
}

// NewDiscoveryCache creates an empty DiscoveryCache.
func NewDiscoveryCache() *DiscoveryCache {
	return &DiscoveryCache{
		items: make(map[discoveryKey]discoveryItem),
		now:   time.Now,
	}
}

// Get returns the cached entry for date. Entries for another date, or past
// their TTL, are evicted and reported as a miss.
func (c *DiscoveryCache) Get(_ context.Context, venue domain.Venue, asset, date string) (domain.DiscoveryEntry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := discoveryKey{venue: venue, asset: asset}
	item, ok := c.items[key]
	if !ok {
		return domain.DiscoveryEntry{}, false, nil
	}
	if item.entry.Date != date || !c.now().Before(item.expires) {
		delete(c.items, key)
		return domain.DiscoveryEntry{}, false, nil
	}
	return cloneEntry(item.entry), true, nil
}

// Put stores entry for ttl, replacing whatever was cached for its
// (venue, asset), including entries for other dates.
func (c *DiscoveryCache) Put(_ context.Context, entry domain.DiscoveryEntry, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[discoveryKey{venue: entry.Venue, asset: entry.Asset}] = discoveryItem{
		entry:   cloneEntry(entry),
		expires: c.now().Add(ttl),
	}
	return nil
}

// Cleanup removes expired entries.
func (c *DiscoveryCache) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, item := range c.items {
		if !now.Before(item.expires) {
			delete(c.items, k)
		}
	}
}

// Len returns the number of cached entries.
func (c *DiscoveryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func cloneEntry(e domain.DiscoveryEntry) domain.DiscoveryEntry {
	e.Candidates = append([]domain.DiscoveryCandidate(nil), e.Candidates...)
	return e
}

var _ domain.DiscoveryCache = (*DiscoveryCache)(nil)
