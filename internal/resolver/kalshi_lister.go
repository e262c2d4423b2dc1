package resolver

import (
	"context"

	"github.com/alanyoungcy/hourlyarb/internal/domain"
	"github.com/alanyoungcy/hourlyarb/internal/platform/kalshi"
)

// MarketLister lists Kalshi markets by event ticker.
type MarketLister interface {
	GetMarketsByEvent(ctx context.Context, eventTicker string) ([]kalshi.Market, error)
}

// KalshiLister turns a Kalshi market listing into one discovery candidate
// per event ticker.
type KalshiLister struct {
	client MarketLister
}

// NewKalshiLister wraps client.
func NewKalshiLister(client MarketLister) *KalshiLister {
	return &KalshiLister{client: client}
}

// ListCandidates lists the markets grouped under eventKey. Markets without a
// parseable close time are skipped.
func (l *KalshiLister) ListCandidates(ctx context.Context, eventKey string) ([]domain.DiscoveryCandidate, error) {
	markets, err := l.client.GetMarketsByEvent(ctx, eventKey)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var out []domain.DiscoveryCandidate
	for _, m := range markets {
		id := m.EventTicker
		if id == "" {
			id = m.Ticker
		}
		if _, dup := seen[id]; dup {
			continue
		}
		closesAt, err := m.CloseAt()
		if err != nil {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, domain.DiscoveryCandidate{Identifier: id, ClosesAt: closesAt})
	}
	return out, nil
}
