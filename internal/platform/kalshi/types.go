package kalshi

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Market is a Kalshi market as returned by the REST API. Cent-denominated
// price fields are integers in 1..99; the *_dollars fields carry the same
// prices as decimal strings and are preferred when present.
type Market struct {
	Ticker        string  `json:"ticker"`
	EventTicker   string  `json:"event_ticker"`
	Title         string  `json:"title"`
	Subtitle      string  `json:"subtitle"`
	YesSubTitle   string  `json:"yes_sub_title"`
	Status        string  `json:"status"` // "initialized", "active", "closed", "settled"
	YesBid        float64 `json:"yes_bid"`
	YesAsk        float64 `json:"yes_ask"`
	NoBid         float64 `json:"no_bid"`
	NoAsk         float64 `json:"no_ask"`
	YesBidDollars string  `json:"yes_bid_dollars"`
	YesAskDollars string  `json:"yes_ask_dollars"`
	NoBidDollars  string  `json:"no_bid_dollars"`
	NoAskDollars  string  `json:"no_ask_dollars"`
	LastPrice     float64 `json:"last_price"`
	Volume        int64   `json:"volume"`
	OpenInterest  int64   `json:"open_interest"`
	StrikeType    string  `json:"strike_type"`
	FloorStrike   float64 `json:"floor_strike"`
	CapStrike     float64 `json:"cap_strike"`
	OpenTime      string  `json:"open_time"`
	CloseTime     string  `json:"close_time"`
}

// Event is a Kalshi event header.
type Event struct {
	EventTicker  string `json:"event_ticker"`
	SeriesTicker string `json:"series_ticker"`
	Title        string `json:"title"`
	SubTitle     string `json:"sub_title"`
	StrikeDate   string `json:"strike_date"`
}

// EventResponse is the body of GET /events/{ticker}. Markets are returned at
// the top level next to the event.
type EventResponse struct {
	Event   Event    `json:"event"`
	Markets []Market `json:"markets"`
}

// ErrorResponse is the error body returned by the Kalshi API.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// UnmarshalJSON accepts both the flat and the {"error": {...}} forms.
func (e *ErrorResponse) UnmarshalJSON(b []byte) error {
	type flat ErrorResponse
	var wrapped struct {
		Error *flat `json:"error"`
		flat
	}
	if err := json.Unmarshal(b, &wrapped); err != nil {
		return err
	}
	if wrapped.Error != nil {
		*e = ErrorResponse(*wrapped.Error)
		return nil
	}
	*e = ErrorResponse(wrapped.flat)
	return nil
}

// CloseAt parses the market's close time.
func (m Market) CloseAt() (time.Time, error) {
	return time.Parse(time.RFC3339, m.CloseTime)
}

// YesBidProb returns the Yes bid as a probability.
func (m Market) YesBidProb() float64 { return price(m.YesBidDollars, m.YesBid) }

// YesAskProb returns the Yes ask as a probability.
func (m Market) YesAskProb() float64 { return price(m.YesAskDollars, m.YesAsk) }

// NoBidProb returns the No bid as a probability.
func (m Market) NoBidProb() float64 { return price(m.NoBidDollars, m.NoBid) }

// NoAskProb returns the No ask as a probability.
func (m Market) NoAskProb() float64 { return price(m.NoAskDollars, m.NoAsk) }

func price(dollars string, cents float64) float64 {
	if d := strings.TrimSpace(dollars); d != "" {
		if v, err := strconv.ParseFloat(d, 64); err == nil {
			return v
		}
	}
	return normalizeProb(cents)
}

// normalizeProb converts a cent price (1..99) to a probability. Values that
// are already fractional are returned unchanged.
func normalizeProb(p float64) float64 {
	if p > 1 {
		return p / 100
	}
	return p
}
