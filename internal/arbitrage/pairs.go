package arbitrage

import (
	"math"
	"sort"

	"github.com/alanyoungcy/hourlyarb/internal/domain"
)

// BuildPairs matches the Polymarket market of a window with each Kalshi
// strike market. When maxStrikes is positive and the price to beat is known,
// only the maxStrikes strikes nearest to it are kept.
func BuildPairs(w domain.MarketWindow, poly domain.PolymarketQuotes, markets []domain.StrikeMarket, priceToBeat float64, maxStrikes int) []domain.QuotePair {
	selected := markets
	if maxStrikes > 0 && priceToBeat > 0 && len(markets) > maxStrikes {
		selected = append([]domain.StrikeMarket(nil), markets...)
		sort.SliceStable(selected, func(i, j int) bool {
			return math.Abs(selected[i].Strike-priceToBeat) < math.Abs(selected[j].Strike-priceToBeat)
		})
		selected = selected[:maxStrikes]
		sort.SliceStable(selected, func(i, j int) bool { return selected[i].Strike < selected[j].Strike })
	}

	pairs := make([]domain.QuotePair, 0, len(selected))
	for _, m := range selected {
		pairs = append(pairs, domain.QuotePair{
			Window:      w,
			PolyUp:      poly.Up,
			PolyDown:    poly.Down,
			KalshiYes:   m.Yes(),
			KalshiNo:    m.No(),
			Strike:      m.Strike,
			PriceToBeat: priceToBeat,
		})
	}
	return pairs
}

// StrategiesFor returns the hedges worth evaluating for a pair. Kalshi Yes
// pays when the price ends above the strike and Polymarket Up pays when it
// ends above the price to beat, so with a known price to beat only the
// direction that covers the gap between them is a hedge.
func StrategiesFor(p domain.QuotePair) []domain.Strategy {
	switch {
	case p.PriceToBeat <= 0 || p.PriceToBeat == p.Strike:
		return []domain.Strategy{domain.StrategyKalshiYesPolyDown, domain.StrategyKalshiNoPolyUp}
	case p.PriceToBeat > p.Strike:
		return []domain.Strategy{domain.StrategyKalshiYesPolyDown}
	default:
		return []domain.Strategy{domain.StrategyKalshiNoPolyUp}
	}
}
