// Package pricefeed resolves the "price to beat" of an hourly window: the
// underlying's price when the window opened. Polymarket Up/Down markets
// settle against it, so it decides which Kalshi strikes form a hedge.
package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/hourlyarb/internal/domain"
	"golang.org/x/sync/singleflight"
)

// Feed tries each source in order and caches the first positive price per
// (asset, hour).
type Feed struct {
	sources []Source
	cache   domain.PriceToBeatCache
	ttl     time.Duration
	group   singleflight.Group
	logger  *slog.Logger
}

// New creates a Feed over sources, in priority order.
func New(cache domain.PriceToBeatCache, ttl time.Duration, logger *slog.Logger, sources ...Source) *Feed {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &Feed{
		sources: sources,
		cache:   cache,
		ttl:     ttl,
		logger:  logger.With(slog.String("component", "pricefeed")),
	}
}

// PriceToBeat returns asset's price at w.OpensAt.
func (f *Feed) PriceToBeat(ctx context.Context, asset domain.Asset, w domain.MarketWindow) (domain.PriceToBeat, error) {
	hour := w.OpensAt.UTC()
	if p, err := f.cache.Get(ctx, asset.Symbol, hour); err == nil {
		return p, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		f.logger.WarnContext(ctx, "price cache get failed", slog.String("error", err.Error()))
	}

	v, err, _ := f.group.Do(asset.Symbol+"|"+hour.Format(time.RFC3339), func() (interface{}, error) {
		return f.fetch(ctx, asset, hour)
	})
	if err != nil {
		return domain.PriceToBeat{}, err
	}
	return v.(domain.PriceToBeat), nil
}

func (f *Feed) fetch(ctx context.Context, asset domain.Asset, hour time.Time) (domain.PriceToBeat, error) {
	var errs []error
	for _, src := range f.sources {
		price, err := src.OpenPrice(ctx, asset, hour)
		if err != nil || price <= 0 {
			if err == nil {
				err = fmt.Errorf("non-positive price %v", price)
			}
			f.logger.DebugContext(ctx, "price source failed",
				slog.String("asset", asset.Symbol),
				slog.String("source", src.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}

		p := domain.PriceToBeat{Asset: asset.Symbol, Hour: hour, Price: price, Source: src.Name()}
		if err := f.cache.Set(ctx, p, f.ttl); err != nil {
			f.logger.WarnContext(ctx, "price cache set failed", slog.String("error", err.Error()))
		}
		f.logger.InfoContext(ctx, "price to beat resolved",
			slog.String("asset", asset.Symbol),
			slog.String("source", src.Name()),
			slog.Float64("price", price),
		)
		return p, nil
	}
	if len(errs) == 0 {
		errs = append(errs, errors.New("no price sources configured"))
	}
	return domain.PriceToBeat{}, fmt.Errorf("pricefeed: %s at %s: %w: %w",
		asset.Symbol, hour.Format(time.RFC3339), domain.ErrUpstream, errors.Join(errs...))
}
