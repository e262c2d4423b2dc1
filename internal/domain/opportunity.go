package domain

import "time"

// Strategy names one of the two hedges evaluated per quote pair.
type Strategy string

const (
	StrategyKalshiYesPolyDown Strategy = "kalshi_yes_poly_down"
	StrategyKalshiNoPolyUp    Strategy = "kalshi_no_poly_up"
)

// Leg is one side of a hedge bought on one venue.
type Leg struct {
	Venue      Venue   `json:"venue"`
	Side       Side    `json:"side"`
	Identifier string  `json:"identifier"`
	Price      float64 `json:"price"`
	FeeUSD     float64 `json:"fee_usd"`
}

// Opportunity is the evaluation of one hedge. Fees and NetMargin are per
// dollar of payout; the USD fields are the same quantities on Stake.
type Opportunity struct {
	ID           string       `json:"id"`
	Asset        string       `json:"asset"`
	Window       MarketWindow `json:"window"`
	Strategy     Strategy     `json:"strategy"`
	Strike       float64      `json:"strike"`
	PriceToBeat  float64      `json:"price_to_beat,omitempty"`
	LegA         Leg          `json:"leg_a"`
	LegB         Leg          `json:"leg_b"`
	GrossCost    float64      `json:"gross_cost"`
	Fees         float64      `json:"fees"`
	NetMargin    float64      `json:"net_margin"`
	Stake        float64      `json:"stake"`
	FeesUSD      float64      `json:"fees_usd"`
	NetMarginUSD float64      `json:"net_margin_usd"`
	IsProfitable bool         `json:"is_profitable"`
	QuotedAt     time.Time    `json:"quoted_at"`
}

// DedupKey identifies an opportunity across evaluation rounds of one window.
func (o Opportunity) DedupKey() string {
	return o.Asset + "|" + o.Window.OpensAt.UTC().Format(time.RFC3339) + "|" + string(o.Strategy) + "|" + o.LegA.Identifier
}

// PolymarketLeg is the Polymarket half of a report.
type PolymarketLeg struct {
	Window      MarketWindow `json:"window"`
	Slug        string       `json:"slug"`
	URL         string       `json:"url"`
	Up          *Quote       `json:"up,omitempty"`
	Down        *Quote       `json:"down,omitempty"`
	UpTokenID   string       `json:"up_token_id,omitempty"`
	DownTokenID string       `json:"down_token_id,omitempty"`
	PriceToBeat float64      `json:"price_to_beat,omitempty"`
}

// KalshiLeg is the Kalshi half of a report.
type KalshiLeg struct {
	Window      MarketWindow   `json:"window"`
	EventTicker string         `json:"event_ticker,omitempty"`
	URL         string         `json:"url,omitempty"`
	Discovered  bool           `json:"discovered"`
	Markets     []StrikeMarket `json:"markets,omitempty"`
}

// OpportunityReport is the result of evaluating one asset's current window.
// It is returned even when one leg failed; failures are listed in Errors.
type OpportunityReport struct {
	Asset         string        `json:"asset"`
	Window        MarketWindow  `json:"window"`
	Polymarket    PolymarketLeg `json:"polymarket"`
	Kalshi        KalshiLeg     `json:"kalshi"`
	Opportunities []Opportunity `json:"opportunities"`
	Errors        []ReportError `json:"errors"`
	GeneratedAt   time.Time     `json:"generated_at"`
}

// Best returns the highest-margin opportunity, if any.
func (r OpportunityReport) Best() (Opportunity, bool) {
	if len(r.Opportunities) == 0 {
		return Opportunity{}, false
	}
	return r.Opportunities[0], true
}
