package domain

import "time"

// Venue names a prediction-market platform.
type Venue string

const (
	// VenueKalshi lists hourly events by closing hour and must be discovered.
	VenueKalshi Venue = "kalshi"
	// VenuePolymarket names hourly markets by opening hour; slugs are generated.
	VenuePolymarket Venue = "polymarket"
)

// Side is the outcome a quote prices.
type Side string

const (
	SideUp   Side = "up"
	SideDown Side = "down"
	SideYes  Side = "yes"
	SideNo   Side = "no"
)

// Quote is the top of book for one outcome of one venue market. Prices are
// probabilities in [0, 1]; zero means no price on that side.
type Quote struct {
	Venue      Venue     `json:"venue"`
	Identifier string    `json:"identifier"`
	Side       Side      `json:"side"`
	Bid        float64   `json:"bid"`
	Ask        float64   `json:"ask"`
	Strike     float64   `json:"strike,omitempty"`
	At         time.Time `json:"at"`
}

// VenueIdentifier is a venue market resolved for a specific window.
type VenueIdentifier struct {
	Venue      Venue        `json:"venue"`
	Asset      string       `json:"asset"`
	Window     MarketWindow `json:"window"`
	Identifier string       `json:"identifier"`
	URL        string       `json:"url"`
	Discovered bool         `json:"discovered"`
}

// StrikeMarket is one strike of a Kalshi hourly event.
type StrikeMarket struct {
	Ticker   string    `json:"ticker"`
	Strike   float64   `json:"strike"`
	Subtitle string    `json:"subtitle,omitempty"`
	YesBid   float64   `json:"yes_bid"`
	YesAsk   float64   `json:"yes_ask"`
	NoBid    float64   `json:"no_bid"`
	NoAsk    float64   `json:"no_ask"`
	At       time.Time `json:"at"`
}

// Yes returns the Yes quote of the strike market.
func (m StrikeMarket) Yes() Quote {
	return Quote{Venue: VenueKalshi, Identifier: m.Ticker, Side: SideYes, Bid: m.YesBid, Ask: m.YesAsk, Strike: m.Strike, At: m.At}
}

// No returns the No quote of the strike market.
func (m StrikeMarket) No() Quote {
	return Quote{Venue: VenueKalshi, Identifier: m.Ticker, Side: SideNo, Bid: m.NoBid, Ask: m.NoAsk, Strike: m.Strike, At: m.At}
}

// PolymarketQuotes holds the Up and Down quotes of one hourly Polymarket
// market plus the CLOB token ids needed to stream it.
type PolymarketQuotes struct {
	Slug        string `json:"slug"`
	Up          Quote  `json:"up"`
	Down        Quote  `json:"down"`
	UpTokenID   string `json:"up_token_id"`
	DownTokenID string `json:"down_token_id"`
}

// QuotePair matches one Polymarket market with one Kalshi strike market in
// the same window.
type QuotePair struct {
	Window      MarketWindow
	PolyUp      Quote
	PolyDown    Quote
	KalshiYes   Quote
	KalshiNo    Quote
	Strike      float64
	PriceToBeat float64 // zero when unknown
}
