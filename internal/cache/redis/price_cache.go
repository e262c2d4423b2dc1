package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/hourlyarb/internal/domain"
)

// PriceToBeatCache implements domain.PriceToBeatCache using Redis hashes.
// Each reference price is stored at "ptb:{asset}:{hourUnix}" with fields
// "price" and "source".
type PriceToBeatCache struct {
	c *Client
}

// NewPriceToBeatCache creates a PriceToBeatCache backed by the given Client.
func NewPriceToBeatCache(c *Client) *PriceToBeatCache {
	return &PriceToBeatCache{c: c}
}

func (pc *PriceToBeatCache) key(asset string, hour time.Time) string {
	return pc.c.Key("ptb:" + asset + ":" + strconv.FormatInt(hour.Unix(), 10))
}

// Set stores the reference price for its hour.
func (pc *PriceToBeatCache) Set(ctx context.Context, p domain.PriceToBeat, ttl time.Duration) error {
	key := pc.key(p.Asset, p.Hour)
	pipe := pc.c.rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"price":  strconv.FormatFloat(p.Price, 'f', -1, 64),
		"source": p.Source,
	})
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set price to beat %s: %w", key, err)
	}
	return nil
}

// Get returns the reference price for (asset, hour), or domain.ErrNotFound.
func (pc *PriceToBeatCache) Get(ctx context.Context, asset string, hour time.Time) (domain.PriceToBeat, error) {
	key := pc.key(asset, hour)
	vals, err := pc.c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return domain.PriceToBeat{}, fmt.Errorf("redis: get price to beat %s: %w", key, err)
	}
	priceStr, ok := vals["price"]
	if !ok {
		return domain.PriceToBeat{}, domain.ErrNotFound
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return domain.PriceToBeat{}, fmt.Errorf("redis: parse price to beat %s: %w", key, err)
	}
	return domain.PriceToBeat{
		Asset:  asset,
		Hour:   hour,
		Price:  price,
		Source: vals["source"],
	}, nil
}

// Compile-time interface check.
var _ domain.PriceToBeatCache = (*PriceToBeatCache)(nil)
