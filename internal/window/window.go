// Package window computes the hourly market window a venue contract covers.
//
// Both venues list the same hourly contracts but name them differently:
// Kalshi events are keyed by the hour they close, Polymarket markets by the
// hour they open. The two conventions are modelled as named policies so the
// offset each venue needs lives in configuration.
package window

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/alanyoungcy/hourlyarb/internal/domain"
)

// Policy selects which edge of the window an hour offset anchors.
type Policy int

const (
	// ByOpenHour anchors the offset to the window's opening hour.
	ByOpenHour Policy = iota
	// ByCloseHour anchors the offset to the window's closing hour.
	ByCloseHour
)

func (p Policy) String() string {
	switch p {
	case ByOpenHour:
		return "by_open_hour"
	case ByCloseHour:
		return "by_close_hour"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy parses the configuration name of a policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "by_open_hour", "open":
		return ByOpenHour, nil
	case "by_close_hour", "close":
		return ByCloseHour, nil
	}
	return 0, fmt.Errorf("window: unknown policy %q", s)
}

// VenuePolicy is the policy and hour offset configured for one venue.
type VenuePolicy struct {
	Policy Policy
	Offset int
}

var eastern = mustLoad("America/New_York")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("window: load %s: %v", name, err))
	}
	return loc
}

// Eastern returns the US/Eastern location all venue calendars use.
func Eastern() *time.Location { return eastern }

// TruncateHour returns the start of the Eastern hour containing t. Eastern
// offsets are whole hours, so absolute truncation is DST safe.
func TruncateHour(t time.Time) time.Time {
	return t.Truncate(time.Hour).In(eastern)
}

// Compute returns the window for asset at now. With ByOpenHour the window
// opens offset hours after the start of the current hour; with ByCloseHour it
// closes offset hours after it.
func Compute(asset string, now time.Time, offset int, policy Policy) (domain.MarketWindow, error) {
	if offset < 0 {
		return domain.MarketWindow{}, fmt.Errorf("window: negative offset %d: %w", offset, domain.ErrInvalidInput)
	}
	anchor := TruncateHour(now).Add(time.Duration(offset) * time.Hour)

	var opens time.Time
	switch policy {
	case ByOpenHour:
		opens = anchor
	case ByCloseHour:
		opens = anchor.Add(-time.Hour)
	default:
		return domain.MarketWindow{}, fmt.Errorf("window: %s: %w", policy, domain.ErrInvalidInput)
	}
	return domain.MarketWindow{
		Asset:    asset,
		OpensAt:  opens,
		ClosesAt: opens.Add(time.Hour),
	}, nil
}

// openShift is the hour, relative to the current one, at which vp's window
// opens.
func (vp VenuePolicy) openShift() int {
	if vp.Policy == ByCloseHour {
		return vp.Offset - 1
	}
	return vp.Offset
}

// Aligned reports whether two venue policies select the same window at
// every instant.
func Aligned(a, b VenuePolicy) bool {
	return a.openShift() == b.openShift()
}

// ForVenue computes the window using a venue's configured policy.
func ForVenue(asset string, now time.Time, vp VenuePolicy) (domain.MarketWindow, error) {
	return Compute(asset, now, vp.Offset, vp.Policy)
}
