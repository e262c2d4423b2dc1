package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alanyoungcy/hourlyarb/internal/domain"
)

func TestPriceToBeatCacheDropsOldHours(t *testing.T) {
	ctx := context.Background()
	c := NewPriceToBeatCache()
	h1 := time.Date(2026, 1, 9, 20, 0, 0, 0, time.UTC)
	h2 := h1.Add(time.Hour)

	_ = c.Set(ctx, domain.PriceToBeat{Asset: "BTC", Hour: h1, Price: 93500}, time.Hour)
	if p, err := c.Get(ctx, "BTC", h1); err != nil || p.Price != 93500 {
		t.Fatalf("Get h1 = %+v, %v", p, err)
	}

	_ = c.Set(ctx, domain.PriceToBeat{Asset: "ETH", Hour: h2, Price: 3200}, time.Hour)
	if _, err := c.Get(ctx, "BTC", h1); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("h1 survived hour change: %v", err)
	}

	// A late write for the old hour does not resurrect it.
	_ = c.Set(ctx, domain.PriceToBeat{Asset: "BTC", Hour: h1, Price: 1}, time.Hour)
	if _, err := c.Get(ctx, "BTC", h1); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("stale write accepted: %v", err)
	}
	if p, err := c.Get(ctx, "ETH", h2); err != nil || p.Price != 3200 {
		t.Errorf("Get h2 = %+v, %v", p, err)
	}
}
