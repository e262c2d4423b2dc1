package domain

import "time"

// MarketWindow is the hourly interval a pair of contracts pays out over.
// ClosesAt is always OpensAt plus one hour.
type MarketWindow struct {
	Asset    string    `json:"asset"`
	OpensAt  time.Time `json:"opens_at"`
	ClosesAt time.Time `json:"closes_at"`
}

// Contains reports whether t falls inside the window.
func (w MarketWindow) Contains(t time.Time) bool {
	return !t.Before(w.OpensAt) && t.Before(w.ClosesAt)
}

// Equal reports whether both windows cover the same hour of the same asset.
func (w MarketWindow) Equal(o MarketWindow) bool {
	return w.Asset == o.Asset && w.OpensAt.Equal(o.OpensAt) && w.ClosesAt.Equal(o.ClosesAt)
}
