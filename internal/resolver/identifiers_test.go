package resolver

import (
	"testing"
	"time"

	"github.com/alanyoungcy/hourlyarb/internal/domain"
	"github.com/alanyoungcy/hourlyarb/internal/window"
)

func btc() domain.Asset { return domain.DefaultAssets()[0] }

func windowAt(t *testing.T, year int, month time.Month, day, hour int) domain.MarketWindow {
	t.Helper()
	w, err := window.Compute("BTC", time.Date(year, month, day, hour, 30, 0, 0, window.Eastern()), 0, window.ByOpenHour)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	return w
}

func TestPolymarketSlug(t *testing.T) {
	tests := []struct {
		hour int
		want string
	}{
		{0, "bitcoin-up-or-down-january-9-12am-et"},
		{9, "bitcoin-up-or-down-january-9-9am-et"},
		{12, "bitcoin-up-or-down-january-9-12pm-et"},
		{20, "bitcoin-up-or-down-january-9-8pm-et"},
		{23, "bitcoin-up-or-down-january-9-11pm-et"},
	}
	for _, tc := range tests {
		if got := PolymarketSlug(btc(), windowAt(t, 2026, time.January, 9, tc.hour)); got != tc.want {
			t.Errorf("hour %d: slug = %q, want %q", tc.hour, got, tc.want)
		}
	}
}

func TestSlugHourRoundTrip(t *testing.T) {
	for hour := 0; hour < 24; hour++ {
		slug := PolymarketSlug(btc(), windowAt(t, 2026, time.March, 8, hour))
		got, err := DecodeSlugHour(slug)
		if err != nil {
			t.Fatalf("DecodeSlugHour(%q): %v", slug, err)
		}
		if got != hour {
			t.Errorf("DecodeSlugHour(%q) = %d, want %d", slug, got, hour)
		}
	}
}

func TestDecodeSlugHourRejectsGarbage(t *testing.T) {
	for _, slug := range []string{"", "bitcoin-up-or-down", "x-13pm-et", "x-0am-et", "x-9xm-et"} {
		if _, err := DecodeSlugHour(slug); err == nil {
			t.Errorf("DecodeSlugHour(%q) succeeded", slug)
		}
	}
}

func TestKalshiEventKeyUsesClosingDate(t *testing.T) {
	// 23:00-00:00 closes on the next day.
	w := windowAt(t, 2026, time.January, 9, 23)
	if got := KalshiEventKey(btc(), w); got != "KXBTCD-26JAN10" {
		t.Errorf("event key = %q, want KXBTCD-26JAN10", got)
	}
	if got := DiscoveryDate(w); got != "2026-01-10" {
		t.Errorf("discovery date = %q", got)
	}

	w = windowAt(t, 2026, time.January, 9, 16)
	if got := KalshiEventKey(btc(), w); got != "KXBTCD-26JAN09" {
		t.Errorf("event key = %q, want KXBTCD-26JAN09", got)
	}
	if got := GuessKalshiEventTicker(btc(), w); got != "KXBTCD-26JAN0917" {
		t.Errorf("guessed ticker = %q, want KXBTCD-26JAN0917", got)
	}
}

func TestKalshiURL(t *testing.T) {
	got := KalshiURL(btc(), "KXBTCD-26JAN0917")
	want := "https://kalshi.com/markets/kxbtcd/bitcoin-price-abovebelow/kxbtcd-26jan0917"
	if got != want {
		t.Errorf("url = %q, want %q", got, want)
	}

	custom := domain.CustomAsset("Doge", "kxdoged", "dogecoin-up-or-down", "DOGEUSDT")
	got = KalshiURL(custom, "KXDOGED-26JAN0917")
	want = "https://kalshi.com/markets/kxdoged/doge-price-abovebelow/kxdoged-26jan0917"
	if got != want {
		t.Errorf("custom url = %q, want %q", got, want)
	}
}
