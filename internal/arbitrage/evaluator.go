// Package arbitrage evaluates fee-aware cross-venue hedges over matched
// Kalshi and Polymarket quotes.
package arbitrage

import (
	"math"
	"sort"
	"time"

	"github.com/alanyoungcy/hourlyarb/internal/domain"
	"github.com/google/uuid"
)

// DefaultStake is the notional hedge size fees are computed on.
const DefaultStake = 100.0

// Config configures an Evaluator.
type Config struct {
	Stake float64
	Fees  FeeTable
}

// Evaluator scores both hedges of every quote pair. It is stateless and safe
// for concurrent use.
type Evaluator struct {
	stake float64
	fees  FeeTable
	newID func() string
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(cfg Config) *Evaluator {
	stake := cfg.Stake
	if stake <= 0 {
		stake = DefaultStake
	}
	fees := cfg.Fees
	if fees == nil {
		fees = FeeTable{}
	}
	return &Evaluator{stake: stake, fees: fees, newID: uuid.NewString}
}

// Stake returns the configured hedge size.
func (e *Evaluator) Stake() float64 { return e.stake }

// Evaluate returns every computable opportunity, sorted by net margin
// descending with ties broken by the more recent quote. Unprofitable
// opportunities are included.
func (e *Evaluator) Evaluate(pairs []domain.QuotePair) []domain.Opportunity {
	var out []domain.Opportunity
	for _, p := range pairs {
		for _, s := range StrategiesFor(p) {
			if opp, ok := e.evaluate(p, s); ok {
				out = append(out, opp)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].NetMargin != out[j].NetMargin {
			return out[i].NetMargin > out[j].NetMargin
		}
		return out[i].QuotedAt.After(out[j].QuotedAt)
	})
	return out
}

func (e *Evaluator) evaluate(p domain.QuotePair, s domain.Strategy) (domain.Opportunity, bool) {
	var kalshiQ, polyQ domain.Quote
	switch s {
	case domain.StrategyKalshiYesPolyDown:
		kalshiQ, polyQ = p.KalshiYes, p.PolyDown
	case domain.StrategyKalshiNoPolyUp:
		kalshiQ, polyQ = p.KalshiNo, p.PolyUp
	default:
		return domain.Opportunity{}, false
	}
	if kalshiQ.Ask <= 0 || polyQ.Ask <= 0 {
		return domain.Opportunity{}, false
	}

	gross := kalshiQ.Ask + polyQ.Ask
	kalshiFee := e.fees[domain.VenueKalshi].LegFee(e.stake, kalshiQ.Ask, gross)
	polyFee := e.fees[domain.VenuePolymarket].LegFee(e.stake, polyQ.Ask, gross)
	feesUSD := kalshiFee + polyFee
	fees := feesUSD / e.stake
	margin := roundMargin(1 - gross - fees)

	return domain.Opportunity{
		ID:          e.newID(),
		Asset:       p.Window.Asset,
		Window:      p.Window,
		Strategy:    s,
		Strike:      p.Strike,
		PriceToBeat: p.PriceToBeat,
		LegA: domain.Leg{
			Venue:      domain.VenueKalshi,
			Side:       kalshiQ.Side,
			Identifier: kalshiQ.Identifier,
			Price:      kalshiQ.Ask,
			FeeUSD:     kalshiFee,
		},
		LegB: domain.Leg{
			Venue:      domain.VenuePolymarket,
			Side:       polyQ.Side,
			Identifier: polyQ.Identifier,
			Price:      polyQ.Ask,
			FeeUSD:     polyFee,
		},
		GrossCost:    gross,
		Fees:         fees,
		NetMargin:    margin,
		Stake:        e.stake,
		FeesUSD:      feesUSD,
		NetMarginUSD: roundMargin(e.stake*(1-gross) - feesUSD),
		IsProfitable: margin > 0,
		QuotedAt:     older(kalshiQ.At, polyQ.At),
	}, true
}

// roundMargin drops float noise below 1e-9 so that a margin's sign and
// IsProfitable always agree.
func roundMargin(x float64) float64 {
	r := math.Round(x*1e9) / 1e9
	if r == 0 {
		return 0
	}
	return r
}

// older returns the earlier non-zero time: a hedge is only as fresh as its
// stalest leg.
func older(a, b time.Time) time.Time {
	switch {
	case a.IsZero():
		return b
	case b.IsZero():
		return a
	case a.Before(b):
		return a
	default:
		return b
	}
}
