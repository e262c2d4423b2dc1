// Package quote fetches current top-of-book quotes for resolved venue
// identifiers.
package quote

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/alanyoungcy/hourlyarb/internal/domain"
	"github.com/alanyoungcy/hourlyarb/internal/platform/kalshi"
)

// DefaultTimeout bounds a single quote fetch.
const DefaultTimeout = 5 * time.Second

// KalshiEvents fetches a Kalshi event with its strike markets.
type KalshiEvents interface {
	GetEvent(ctx context.Context, eventTicker string) (kalshi.EventResponse, error)
}

// PolymarketQuotes fetches the Up/Down quotes of an hourly Polymarket market.
type PolymarketQuotes interface {
	GetQuotes(ctx context.Context, slug string) (domain.PolymarketQuotes, error)
}

// Fetcher fetches quotes from both venues. Every error it returns is a
// *domain.FetchError.
type Fetcher struct {
	kalshi  KalshiEvents
	poly    PolymarketQuotes
	timeout time.Duration
	now     func() time.Time
}

// NewFetcher creates a Fetcher. A zero timeout uses DefaultTimeout.
func NewFetcher(k KalshiEvents, p PolymarketQuotes, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{kalshi: k, poly: p, timeout: timeout, now: time.Now}
}

// FetchQuotes returns every quote of a resolved identifier: Up and Down for
// Polymarket, Yes and No per strike for Kalshi.
func (f *Fetcher) FetchQuotes(ctx context.Context, id domain.VenueIdentifier) ([]domain.Quote, error) {
	switch id.Venue {
	case domain.VenuePolymarket:
		q, err := f.FetchPolymarket(ctx, id)
		if err != nil {
			return nil, err
		}
		return []domain.Quote{q.Up, q.Down}, nil
	case domain.VenueKalshi:
		markets, err := f.FetchKalshi(ctx, id)
		if err != nil {
			return nil, err
		}
		out := make([]domain.Quote, 0, 2*len(markets))
		for _, m := range markets {
			out = append(out, m.Yes(), m.No())
		}
		return out, nil
	default:
		return nil, &domain.FetchError{Venue: id.Venue, Reason: domain.ErrUpstream, Err: fmt.Errorf("unknown venue")}
	}
}

// FetchPolymarket fetches the Up/Down quotes of a generated slug.
func (f *Fetcher) FetchPolymarket(ctx context.Context, id domain.VenueIdentifier) (domain.PolymarketQuotes, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	q, err := f.poly.GetQuotes(ctx, id.Identifier)
	if err != nil {
		return domain.PolymarketQuotes{}, classify(ctx, domain.VenuePolymarket, err)
	}
	return q, nil
}

// FetchKalshi fetches every strike market of a discovered event, ordered by
// strike. Markets without a positive floor strike are skipped.
func (f *Fetcher) FetchKalshi(ctx context.Context, id domain.VenueIdentifier) ([]domain.StrikeMarket, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	ev, err := f.kalshi.GetEvent(ctx, id.Identifier)
	if err != nil {
		return nil, classify(ctx, domain.VenueKalshi, err)
	}

	at := f.now()
	out := make([]domain.StrikeMarket, 0, len(ev.Markets))
	for _, m := range ev.Markets {
		if m.FloorStrike <= 0 {
			continue
		}
		out = append(out, domain.StrikeMarket{
			Ticker:   m.Ticker,
			Strike:   m.FloorStrike,
			Subtitle: m.YesSubTitle,
			YesBid:   m.YesBidProb(),
			YesAsk:   m.YesAskProb(),
			NoBid:    m.NoBidProb(),
			NoAsk:    m.NoAskProb(),
			At:       at,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Strike < out[j].Strike })
	return out, nil
}

// classify wraps err into a FetchError with a timeout, malformed or upstream
// reason.
func classify(ctx context.Context, venue domain.Venue, err error) error {
	reason := domain.ErrUpstream
	switch {
	case errors.Is(err, domain.ErrTimeout), errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		reason = domain.ErrTimeout
	case errors.Is(err, domain.ErrMalformed):
		reason = domain.ErrMalformed
	}
	return &domain.FetchError{Venue: venue, Reason: reason, Err: err}
}
