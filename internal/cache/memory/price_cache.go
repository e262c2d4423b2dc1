package memory

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/hourlyarb/internal/domain"
)

// PriceToBeatCache keeps reference prices for the most recent hour only.
// Storing a price for a newer hour drops every older hour.
type PriceToBeatCache struct {
	mu     sync.Mutex
	hour   time.Time
	prices map[string]domain.PriceToBeat
}

// NewPriceToBeatCache creates an empty PriceToBeatCache.
func NewPriceToBeatCache() *PriceToBeatCache {
	return &PriceToBeatCache{prices: make(map[string]domain.PriceToBeat)}
}

// Get returns the price for (asset, hour) or domain.ErrNotFound.
func (c *PriceToBeatCache) Get(_ context.Context, asset string, hour time.Time) (domain.PriceToBeat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !hour.Equal(c.hour) {
		return domain.PriceToBeat{}, domain.ErrNotFound
	}
	p, ok := c.prices[asset]
	if !ok {
		return domain.PriceToBeat{}, domain.ErrNotFound
	}
	return p, nil
}

// Set stores p. Prices for hours older than the cached hour are ignored.
func (c *PriceToBeatCache) Set(_ context.Context, p domain.PriceToBeat, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case p.Hour.After(c.hour):
		c.hour = p.Hour
		c.prices = make(map[string]domain.PriceToBeat)
	case p.Hour.Before(c.hour):
		return nil
	}
	c.prices[p.Asset] = p
	return nil
}

var _ domain.PriceToBeatCache = (*PriceToBeatCache)(nil)
