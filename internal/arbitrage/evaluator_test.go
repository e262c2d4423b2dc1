package arbitrage

import (
	"math"
	"testing"
	"time"

	"github.com/alanyoungcy/hourlyarb/internal/domain"
)

func approx(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func pair(kYes, kNo, pUp, pDown, strike, ptb float64) domain.QuotePair {
	at := time.Date(2026, 1, 9, 20, 30, 0, 0, time.UTC)
	return domain.QuotePair{
		Window:      domain.MarketWindow{Asset: "BTC"},
		KalshiYes:   domain.Quote{Venue: domain.VenueKalshi, Identifier: "K", Side: domain.SideYes, Ask: kYes, At: at},
		KalshiNo:    domain.Quote{Venue: domain.VenueKalshi, Identifier: "K", Side: domain.SideNo, Ask: kNo, At: at},
		PolyUp:      domain.Quote{Venue: domain.VenuePolymarket, Identifier: "P", Side: domain.SideUp, Ask: pUp, At: at},
		PolyDown:    domain.Quote{Venue: domain.VenuePolymarket, Identifier: "P", Side: domain.SideDown, Ask: pDown, At: at},
		Strike:      strike,
		PriceToBeat: ptb,
	}
}

func TestFlatFee(t *testing.T) {
	s := FeeSchedule{Model: FeeFlat, Rate: 0.007}
	if got := s.LegFee(100, 0.52, 0.98); !approx(got, 0.7, 1e-12) {
		t.Errorf("flat fee = %v, want 0.7", got)
	}
}

func TestNetWinningsFee(t *testing.T) {
	s := FeeSchedule{Model: FeeNetWinnings, Rate: 0.02}
	stake, price, gross := 100.0, 0.52, 0.98
	payout := stake / gross
	legStake := stake * price / gross
	want := 0.02 * (payout - legStake)
	if got := s.LegFee(stake, price, gross); !approx(got, want, 1e-12) {
		t.Errorf("net winnings fee = %v, want %v", got, want)
	}
	// 102.04 contracts bought for 53.06: net winnings 48.98.
	if got := s.LegFee(stake, price, gross); !approx(got, 0.9796, 1e-4) {
		t.Errorf("net winnings fee = %v, want ~0.9796", got)
	}
}

func TestProfitabilityBoundaryIsStrict(t *testing.T) {
	e := NewEvaluator(Config{Stake: 100})

	tests := []struct {
		name     string
		kYes     float64
		pDown    float64
		wantProf bool
	}{
		{"exactly one", 0.5, 0.5, false},
		{"just under one", 0.5, 0.499999, true},
		{"over one", 0.6, 0.5, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			opps := e.Evaluate([]domain.QuotePair{pair(tc.kYes, 0, 0, tc.pDown, 100, 0)})
			if len(opps) != 1 {
				t.Fatalf("got %d opportunities, want 1", len(opps))
			}
			o := opps[0]
			if o.IsProfitable != tc.wantProf {
				t.Errorf("IsProfitable = %v, want %v (gross %v)", o.IsProfitable, tc.wantProf, o.GrossCost)
			}
			if !approx(o.NetMargin, 1-o.GrossCost-o.Fees, 1e-9) {
				t.Errorf("NetMargin = %v, gross %v fees %v", o.NetMargin, o.GrossCost, o.Fees)
			}
		})
	}
}

func TestProfitabilityBoundaryWithFees(t *testing.T) {
	e := NewEvaluator(Config{Stake: 100, Fees: FeeTable{
		domain.VenueKalshi:     {Model: FeeFlat, Rate: 0.007},
		domain.VenuePolymarket: {Model: FeeFlat, Rate: 0.003},
	}})

	tests := []struct {
		name     string
		kYes     float64
		pDown    float64
		wantProf bool
	}{
		// 0.99 + 1% fees lands on 1.0 up to float noise.
		{"fees close the gap exactly", 0.6, 0.39, false},
		{"one cent left after fees", 0.6, 0.38, true},
		{"fees eat the margin", 0.6, 0.395, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			opps := e.Evaluate([]domain.QuotePair{pair(tc.kYes, 0, 0, tc.pDown, 100, 0)})
			if len(opps) != 1 {
				t.Fatalf("got %d opportunities, want 1", len(opps))
			}
			o := opps[0]
			if o.IsProfitable != tc.wantProf {
				t.Errorf("IsProfitable = %v, want %v (margin %v)", o.IsProfitable, tc.wantProf, o.NetMargin)
			}
			if o.IsProfitable != (o.NetMargin > 0) {
				t.Errorf("IsProfitable %v disagrees with NetMargin %v", o.IsProfitable, o.NetMargin)
			}
			if o.IsProfitable != (o.NetMarginUSD > 0) {
				t.Errorf("IsProfitable %v disagrees with NetMarginUSD %v", o.IsProfitable, o.NetMarginUSD)
			}
		})
	}
}

func TestHundredDollarScenario(t *testing.T) {
	e := NewEvaluator(Config{
		Stake: 100,
		Fees: FeeTable{
			domain.VenueKalshi:     {Model: FeeFlat, Rate: 0.007},
			domain.VenuePolymarket: {Model: FeeFlat, Rate: 0.0001},
		},
	})

	opps := e.Evaluate([]domain.QuotePair{pair(0.52, 0, 0, 0.46, 93500, 0)})
	if len(opps) != 1 {
		t.Fatalf("got %d opportunities, want 1", len(opps))
	}
	o := opps[0]
	if o.Strategy != domain.StrategyKalshiYesPolyDown {
		t.Errorf("strategy = %s", o.Strategy)
	}
	if !approx(o.GrossCost, 0.98, 1e-9) {
		t.Errorf("GrossCost = %v, want 0.98", o.GrossCost)
	}
	if !approx(o.FeesUSD, 0.704, 0.01) {
		t.Errorf("FeesUSD = %v, want ~0.704", o.FeesUSD)
	}
	if !approx(o.NetMarginUSD, 1.296, 0.01) {
		t.Errorf("NetMarginUSD = %v, want ~1.296", o.NetMarginUSD)
	}
	if !o.IsProfitable {
		t.Error("expected profitable")
	}
	if o.LegA.Venue != domain.VenueKalshi || o.LegA.Side != domain.SideYes || o.LegB.Side != domain.SideDown {
		t.Errorf("legs = %+v / %+v", o.LegA, o.LegB)
	}
}

func TestEvaluateSortsAndKeepsUnprofitable(t *testing.T) {
	e := NewEvaluator(Config{Stake: 100})
	early := time.Date(2026, 1, 9, 20, 0, 0, 0, time.UTC)

	a := pair(0.375, 0.75, 0.5, 0.5, 100, 0)       // yes+down 0.875, no+up 1.25
	b := pair(0.375, 0.4375, 0.5, 0.5625, 101, 0) // yes+down 0.9375, no+up 0.9375
	b.KalshiNo.At = early

	opps := e.Evaluate([]domain.QuotePair{a, b})
	if len(opps) != 4 {
		t.Fatalf("got %d opportunities, want 4", len(opps))
	}
	for i := 1; i < len(opps); i++ {
		if opps[i-1].NetMargin < opps[i].NetMargin {
			t.Fatalf("not sorted at %d: %v < %v", i, opps[i-1].NetMargin, opps[i].NetMargin)
		}
	}
	if opps[0].GrossCost != 0.875 {
		t.Errorf("best gross = %v", opps[0].GrossCost)
	}
	// The two 0.9375 hedges tie; the fresher quote wins.
	if opps[1].Strategy != domain.StrategyKalshiYesPolyDown || opps[2].Strategy != domain.StrategyKalshiNoPolyUp {
		t.Errorf("tie order = %s, %s", opps[1].Strategy, opps[2].Strategy)
	}
	last := opps[3]
	if last.IsProfitable || last.NetMargin > 0 {
		t.Errorf("last = %+v, want unprofitable", last)
	}
}

func TestStrikeRuleSelectsDirection(t *testing.T) {
	tests := []struct {
		name   string
		strike float64
		ptb    float64
		want   []domain.Strategy
	}{
		{"unknown price to beat", 93500, 0, []domain.Strategy{domain.StrategyKalshiYesPolyDown, domain.StrategyKalshiNoPolyUp}},
		{"price above strike", 93500, 93600, []domain.Strategy{domain.StrategyKalshiYesPolyDown}},
		{"price below strike", 93500, 93400, []domain.Strategy{domain.StrategyKalshiNoPolyUp}},
		{"equal", 93500, 93500, []domain.Strategy{domain.StrategyKalshiYesPolyDown, domain.StrategyKalshiNoPolyUp}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := StrategiesFor(pair(0.5, 0.5, 0.5, 0.5, tc.strike, tc.ptb))
			if len(got) != len(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("got %v, want %v", got, tc.want)
				}
			}
		})
	}
}

func TestMissingLegYieldsNoOpportunity(t *testing.T) {
	e := NewEvaluator(Config{})
	opps := e.Evaluate([]domain.QuotePair{pair(0.5, 0, 0.4, 0, 100, 0)})
	if len(opps) != 0 {
		t.Errorf("got %d opportunities from pair with missing legs", len(opps))
	}
}

func TestBuildPairsKeepsNearestStrikes(t *testing.T) {
	markets := []domain.StrikeMarket{
		{Ticker: "a", Strike: 93000},
		{Ticker: "b", Strike: 93500},
		{Ticker: "c", Strike: 94000},
		{Ticker: "d", Strike: 94500},
	}
	pairs := BuildPairs(domain.MarketWindow{Asset: "BTC"}, domain.PolymarketQuotes{}, markets, 94100, 2)
	if len(pairs) != 2 || pairs[0].Strike != 94000 || pairs[1].Strike != 94500 {
		t.Fatalf("pairs = %+v", pairs)
	}
	if pairs[0].KalshiYes.Identifier != "c" || pairs[0].PriceToBeat != 94100 {
		t.Errorf("pair = %+v", pairs[0])
	}

	if all := BuildPairs(domain.MarketWindow{}, domain.PolymarketQuotes{}, markets, 0, 2); len(all) != 4 {
		t.Errorf("unknown price to beat kept %d pairs, want 4", len(all))
	}
}

func TestParseFeeModel(t *testing.T) {
	if m, err := ParseFeeModel("net_winnings"); err != nil || m != FeeNetWinnings {
		t.Errorf("ParseFeeModel(net_winnings) = %v, %v", m, err)
	}
	if m, err := ParseFeeModel("FLAT"); err != nil || m != FeeFlat {
		t.Errorf("ParseFeeModel(FLAT) = %v, %v", m, err)
	}
	if _, err := ParseFeeModel("percent"); err == nil {
		t.Error("expected error")
	}
}
