package polymarket

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/alanyoungcy/hourlyarb/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether flags are sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// flexFloat unmarshals from a JSON number or a numeric string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(n)
	return nil
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIMarket is a market as returned by the Gamma API. Outcomes, OutcomePrices
// and ClobTokenIDs are JSON arrays encoded as strings.
type APIMarket struct {
	ID            string    `json:"id"`
	Question      string    `json:"question"`
	ConditionID   string    `json:"conditionId"`
	Slug          string    `json:"slug"`
	Active        flexBool  `json:"active"`
	Closed        flexBool  `json:"closed"`
	Outcomes      string    `json:"outcomes"`      // e.g. "[\"Up\",\"Down\"]"
	OutcomePrices string    `json:"outcomePrices"` // e.g. "[\"0.52\",\"0.48\"]"
	ClobTokenIDs  string    `json:"clobTokenIds"`  // e.g. "[\"123\",\"456\"]"
	BestBid       flexFloat `json:"bestBid"`
	BestAsk       flexFloat `json:"bestAsk"`
	StartDate     string    `json:"startDate"`
	EndDate       string    `json:"endDate"`
}

// Outcome is one parsed outcome of an APIMarket.
type Outcome struct {
	Name    string
	Price   float64
	TokenID string
}

// ParseOutcomes decodes the string-encoded outcome arrays.
func (m *APIMarket) ParseOutcomes() ([]Outcome, error) {
	var names, prices, tokens []string
	if err := json.Unmarshal([]byte(m.Outcomes), &names); err != nil {
		return nil, fmt.Errorf("outcomes: %w", err)
	}
	if err := json.Unmarshal([]byte(m.OutcomePrices), &prices); err != nil {
		return nil, fmt.Errorf("outcomePrices: %w", err)
	}
	if m.ClobTokenIDs != "" {
		if err := json.Unmarshal([]byte(m.ClobTokenIDs), &tokens); err != nil {
			return nil, fmt.Errorf("clobTokenIds: %w", err)
		}
	}
	if len(prices) != len(names) {
		return nil, fmt.Errorf("%d outcomes but %d prices", len(names), len(prices))
	}

	out := make([]Outcome, len(names))
	for i, name := range names {
		p, err := strconv.ParseFloat(prices[i], 64)
		if err != nil {
			return nil, fmt.Errorf("price %q: %w", prices[i], err)
		}
		out[i] = Outcome{Name: name, Price: p}
		if i < len(tokens) {
			out[i].TokenID = tokens[i]
		}
	}
	return out, nil
}

// UpDown returns the Up and Down outcomes of an hourly market. When the
// market carries a best bid/ask for the first outcome those are used for
// quoting; Down is priced as the complement.
func (m *APIMarket) UpDown() (domain.PolymarketQuotes, error) {
	outcomes, err := m.ParseOutcomes()
	if err != nil {
		return domain.PolymarketQuotes{}, err
	}

	q := domain.PolymarketQuotes{Slug: m.Slug}
	var haveUp, haveDown bool
	for _, o := range outcomes {
		switch strings.ToLower(o.Name) {
		case "up", "yes":
			q.Up = domain.Quote{Venue: domain.VenuePolymarket, Identifier: m.Slug, Side: domain.SideUp, Bid: o.Price, Ask: o.Price}
			q.UpTokenID = o.TokenID
			haveUp = true
		case "down", "no":
			q.Down = domain.Quote{Venue: domain.VenuePolymarket, Identifier: m.Slug, Side: domain.SideDown, Bid: o.Price, Ask: o.Price}
			q.DownTokenID = o.TokenID
			haveDown = true
		}
	}
	if !haveUp || !haveDown {
		return domain.PolymarketQuotes{}, fmt.Errorf("market %s has no Up/Down outcomes", m.Slug)
	}

	if bid, ask := float64(m.BestBid), float64(m.BestAsk); bid > 0 && ask > 0 && ask >= bid {
		q.Up.Bid, q.Up.Ask = bid, ask
		q.Down.Bid, q.Down.Ask = round4(1-ask), round4(1-bid)
	}
	return q, nil
}

func round4(v float64) float64 {
	return float64(int64(v*10000+0.5)) / 10000
}

// --------------------------------------------------------------------------
// WebSocket DTOs
// --------------------------------------------------------------------------

// WSCommand is the subscription payload sent on the market channel.
type WSCommand struct {
	Type   string   `json:"type"`
	Assets []string `json:"assets_ids"`
}

// WSEvent is one event frame from the CLOB market channel. Frames arrive as
// a single object or as an array of objects.
type WSEvent struct {
	EventType    string          `json:"event_type"`
	AssetID      string          `json:"asset_id"`
	Market       string          `json:"market"`
	Bids         []WSPriceLevel  `json:"bids"`
	Asks         []WSPriceLevel  `json:"asks"`
	PriceChanges []WSPriceChange `json:"price_changes"`
	BestBid      string          `json:"best_bid"`
	BestAsk      string          `json:"best_ask"`
	Timestamp    string          `json:"timestamp"`
}

// WSPriceLevel is a single bid/ask level.
type WSPriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// WSPriceChange is one entry of a price_change event.
type WSPriceChange struct {
	AssetID string `json:"asset_id"`
	Price   string `json:"price"`
	Size    string `json:"size"`
	Side    string `json:"side"`
	BestBid string `json:"best_bid"`
	BestAsk string `json:"best_ask"`
}

// TopOfBook is the best bid and ask of one CLOB token.
type TopOfBook struct {
	AssetID string
	BestBid float64
	BestAsk float64
}

// bookTop returns the best levels of a full book snapshot.
func bookTop(ev *WSEvent) TopOfBook {
	top := TopOfBook{AssetID: ev.AssetID}
	for _, l := range ev.Bids {
		if p := parseFloat(l.Price); p > top.BestBid && parseFloat(l.Size) > 0 {
			top.BestBid = p
		}
	}
	for _, l := range ev.Asks {
		if p := parseFloat(l.Price); p > 0 && parseFloat(l.Size) > 0 && (top.BestAsk == 0 || p < top.BestAsk) {
			top.BestAsk = p
		}
	}
	return top
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
