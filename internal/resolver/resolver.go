package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/hourlyarb/internal/domain"
	"github.com/alanyoungcy/hourlyarb/internal/window"
	"golang.org/x/sync/singleflight"
)

// DefaultDiscoveryTTL is how long a discovery listing is reused.
const DefaultDiscoveryTTL = 5 * time.Minute

// DefaultListTimeout bounds one shared discovery listing. The listing does
// not inherit the cancellation of whichever caller started it.
const DefaultListTimeout = 30 * time.Second

// Lister runs a discovery query for a date-only grouping key and returns
// one candidate per listed event.
type Lister interface {
	ListCandidates(ctx context.Context, eventKey string) ([]domain.DiscoveryCandidate, error)
}

// Resolver resolves venue identifiers for a window. Discovery listings are
// cached per (venue, asset, date) and concurrent misses for the same key
// share one upstream query.
type Resolver struct {
	lister      Lister
	cache       domain.DiscoveryCache
	ttl         time.Duration
	listTimeout time.Duration
	group       singleflight.Group
	logger      *slog.Logger
	now         func() time.Time
}

// New creates a Resolver. A zero ttl uses DefaultDiscoveryTTL.
func New(lister Lister, cache domain.DiscoveryCache, ttl time.Duration, logger *slog.Logger) *Resolver {
	if ttl <= 0 {
		ttl = DefaultDiscoveryTTL
	}
	return &Resolver{
		lister:      lister,
		cache:       cache,
		ttl:         ttl,
		listTimeout: DefaultListTimeout,
		logger:      logger.With(slog.String("component", "resolver")),
		now:         time.Now,
	}
}

// Resolve returns venue's identifier for asset in w.
func (r *Resolver) Resolve(ctx context.Context, venue domain.Venue, asset domain.Asset, w domain.MarketWindow) (domain.VenueIdentifier, error) {
	switch venue {
	case domain.VenuePolymarket:
		return ResolvePolymarket(asset, w), nil
	case domain.VenueKalshi:
		return r.ResolveKalshi(ctx, asset, w)
	default:
		return domain.VenueIdentifier{}, &domain.ResolutionError{
			Venue:  venue,
			Reason: domain.ErrNotFound,
			Err:    fmt.Errorf("unknown venue %q", venue),
		}
	}
}

// ResolvePolymarket generates the Polymarket identifier for w.
func ResolvePolymarket(asset domain.Asset, w domain.MarketWindow) domain.VenueIdentifier {
	slug := PolymarketSlug(asset, w)
	return domain.VenueIdentifier{
		Venue:      domain.VenuePolymarket,
		Asset:      asset.Symbol,
		Window:     w,
		Identifier: slug,
		URL:        PolymarketURL(slug),
	}
}

// ResolveKalshi discovers the Kalshi event closing at w.ClosesAt. It never
// falls back to a generated ticker: no match is NotFound and several matches
// are Ambiguous.
func (r *Resolver) ResolveKalshi(ctx context.Context, asset domain.Asset, w domain.MarketWindow) (domain.VenueIdentifier, error) {
	candidates, err := r.candidates(ctx, asset, w)
	if err != nil {
		return domain.VenueIdentifier{}, &domain.ResolutionError{Venue: domain.VenueKalshi, Reason: domain.ErrUpstream, Err: err}
	}

	matches := Match(candidates, w)
	switch len(matches) {
	case 0:
		return domain.VenueIdentifier{}, &domain.ResolutionError{
			Venue:  domain.VenueKalshi,
			Reason: domain.ErrNotFound,
			Err:    fmt.Errorf("no %s event closes at %s", asset.KalshiSeries, w.ClosesAt.Format(time.RFC3339)),
		}
	case 1:
	default:
		ids := make([]string, len(matches))
		for i, m := range matches {
			ids[i] = m.Identifier
		}
		r.logger.WarnContext(ctx, "ambiguous discovery",
			slog.String("asset", asset.Symbol),
			slog.Time("closes_at", w.ClosesAt),
			slog.Any("candidates", ids),
		)
		return domain.VenueIdentifier{}, &domain.ResolutionError{
			Venue:  domain.VenueKalshi,
			Reason: domain.ErrAmbiguous,
			Err:    fmt.Errorf("%d events close at %s: %v", len(matches), w.ClosesAt.Format(time.RFC3339), ids),
		}
	}

	ticker := matches[0].Identifier
	return domain.VenueIdentifier{
		Venue:      domain.VenueKalshi,
		Asset:      asset.Symbol,
		Window:     w,
		Identifier: ticker,
		URL:        KalshiURL(asset, ticker),
		Discovered: true,
	}, nil
}

// Match keeps the candidates whose closing time, truncated to the hour,
// equals w.ClosesAt. Duplicate identifiers are collapsed.
func Match(candidates []domain.DiscoveryCandidate, w domain.MarketWindow) []domain.DiscoveryCandidate {
	seen := make(map[string]struct{}, len(candidates))
	var out []domain.DiscoveryCandidate
	for _, c := range candidates {
		if !window.TruncateHour(c.ClosesAt).Equal(w.ClosesAt) {
			continue
		}
		if _, dup := seen[c.Identifier]; dup {
			continue
		}
		seen[c.Identifier] = struct{}{}
		out = append(out, c)
	}
	return out
}

// candidates returns the discovery listing for w's date, from cache when
// fresh.
func (r *Resolver) candidates(ctx context.Context, asset domain.Asset, w domain.MarketWindow) ([]domain.DiscoveryCandidate, error) {
	date := DiscoveryDate(w)
	if entry, ok := r.cacheGet(ctx, asset, date); ok {
		return entry.Candidates, nil
	}

	key := string(domain.VenueKalshi) + "|" + asset.Symbol + "|" + date
	ch := r.group.DoChan(key, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.listTimeout)
		defer cancel()

		// A concurrent flight may have filled the cache while we waited.
		if entry, ok := r.cacheGet(ctx, asset, date); ok {
			return entry.Candidates, nil
		}

		eventKey := KalshiEventKey(asset, w)
		listed, err := r.lister.ListCandidates(ctx, eventKey)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", eventKey, err)
		}
		r.logger.DebugContext(ctx, "discovery listing fetched",
			slog.String("asset", asset.Symbol),
			slog.String("event_key", eventKey),
			slog.Int("candidates", len(listed)),
		)

		entry := domain.DiscoveryEntry{
			Venue:      domain.VenueKalshi,
			Asset:      asset.Symbol,
			Date:       date,
			Candidates: listed,
			FetchedAt:  r.now(),
		}
		if err := r.cache.Put(ctx, entry, r.ttl); err != nil {
			r.logger.WarnContext(ctx, "discovery cache put failed", slog.String("error", err.Error()))
		}
		return listed, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]domain.DiscoveryCandidate), nil
	}
}

func (r *Resolver) cacheGet(ctx context.Context, asset domain.Asset, date string) (domain.DiscoveryEntry, bool) {
	entry, ok, err := r.cache.Get(ctx, domain.VenueKalshi, asset.Symbol, date)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			r.logger.WarnContext(ctx, "discovery cache get failed", slog.String("error", err.Error()))
		}
		return domain.DiscoveryEntry{}, false
	}
	return entry, ok
}
