// Package resolver maps a market window to each venue's identifier for it.
//
// Polymarket identifiers are generated from the window's opening hour.
// Kalshi identifiers cannot be generated reliably and are discovered from a
// date-scoped listing, then filtered down to the one event closing at the
// window's closing hour.
package resolver

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/hourlyarb/internal/domain"
	"github.com/alanyoungcy/hourlyarb/internal/window"
)

const (
	polymarketEventURL = "https://polymarket.com/event/"
	kalshiMarketsURL   = "https://kalshi.com/markets/"
)

// PolymarketSlug returns the generated slug of the hourly market opening at
// w.OpensAt, e.g. "bitcoin-up-or-down-january-9-8pm-et".
func PolymarketSlug(asset domain.Asset, w domain.MarketWindow) string {
	t := w.OpensAt.In(window.Eastern())
	hour := t.Hour()
	suffix := "am"
	if hour >= 12 {
		suffix = "pm"
	}
	h12 := hour % 12
	if h12 == 0 {
		h12 = 12
	}
	return fmt.Sprintf("%s-%s-%d-%d%s-et",
		asset.PolySlugPrefix, strings.ToLower(t.Month().String()), t.Day(), h12, suffix)
}

// PolymarketURL returns the public event page of slug.
func PolymarketURL(slug string) string {
	return polymarketEventURL + slug
}

// DecodeSlugHour returns the 24-hour clock hour encoded in a generated slug.
func DecodeSlugHour(slug string) (int, error) {
	rest, ok := strings.CutSuffix(slug, "-et")
	if !ok {
		return 0, fmt.Errorf("resolver: slug %q: missing -et suffix", slug)
	}
	i := strings.LastIndexByte(rest, '-')
	if i < 0 {
		return 0, fmt.Errorf("resolver: slug %q: no hour segment", slug)
	}
	seg := rest[i+1:]

	var pm bool
	switch {
	case strings.HasSuffix(seg, "am"):
	case strings.HasSuffix(seg, "pm"):
		pm = true
	default:
		return 0, fmt.Errorf("resolver: slug %q: hour %q has no am/pm", slug, seg)
	}
	h12, err := strconv.Atoi(seg[:len(seg)-2])
	if err != nil || h12 < 1 || h12 > 12 {
		return 0, fmt.Errorf("resolver: slug %q: bad hour %q", slug, seg)
	}

	hour := h12 % 12
	if pm {
		hour += 12
	}
	return hour, nil
}

// KalshiEventKey returns the date-only grouping key used to list every
// hourly event of the day the window closes on, e.g. "KXBTCD-26JAN09".
func KalshiEventKey(asset domain.Asset, w domain.MarketWindow) string {
	return asset.KalshiSeries + "-" + kalshiDate(w.ClosesAt)
}

// GuessKalshiEventTicker returns the hour-suffixed ticker naming convention
// ("KXBTCD-26JAN0917"). It is only a diagnostic: real tickers must come from
// discovery.
func GuessKalshiEventTicker(asset domain.Asset, w domain.MarketWindow) string {
	return fmt.Sprintf("%s-%s%02d", asset.KalshiSeries, kalshiDate(w.ClosesAt), w.ClosesAt.In(window.Eastern()).Hour())
}

// KalshiURL returns the public market page for a discovered event ticker.
func KalshiURL(asset domain.Asset, ticker string) string {
	slug := asset.KalshiSlug
	if slug == "" {
		slug = strings.ToLower(asset.Name) + "-price-abovebelow"
	}
	return kalshiMarketsURL + asset.KalshiMarketBase + "/" + slug + "/" + strings.ToLower(ticker)
}

// DiscoveryDate is the cache date of a window's discovery listing.
func DiscoveryDate(w domain.MarketWindow) string {
	return w.ClosesAt.In(window.Eastern()).Format(time.DateOnly)
}

func kalshiDate(t time.Time) string {
	t = t.In(window.Eastern())
	return fmt.Sprintf("%02d%s%02d", t.Year()%100, strings.ToUpper(t.Month().String()[:3]), t.Day())
}
