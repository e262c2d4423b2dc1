package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alanyoungcy/hourlyarb/internal/cache/memory"
	"github.com/alanyoungcy/hourlyarb/internal/domain"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

var (
	btc  = domain.DefaultAssets()[0]
	hour = time.Date(2026, 1, 9, 20, 0, 0, 0, time.UTC)
	win  = domain.MarketWindow{Asset: "BTC", OpensAt: hour, ClosesAt: hour.Add(time.Hour)}
)

func TestFeedFallsBackToBinance(t *testing.T) {
	var dataCalls, binanceCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/price", func(w http.ResponseWriter, r *http.Request) {
		dataCalls.Add(1)
		http.Error(w, "nope", http.StatusBadGateway)
	})
	mux.HandleFunc("/api/v3/klines", func(w http.ResponseWriter, r *http.Request) {
		binanceCalls.Add(1)
		q := r.URL.Query()
		if q.Get("symbol") != "BTCUSDT" || q.Get("interval") != "1h" || q.Get("startTime") != fmt.Sprint(hour.UnixMilli()) {
			t.Errorf("unexpected kline query %s", r.URL.RawQuery)
		}
		fmt.Fprint(w, `[[1767988800000,"93512.50","93600.00","93400.00","93550.00","12.3"]]`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := srv.Client()
	feed := New(memory.NewPriceToBeatCache(), time.Hour, testLogger(),
		NewDataAPISource(srv.URL, client),
		NewBinanceSource(srv.URL, client),
		NewCryptoCompareSource(srv.URL, client),
	)

	p, err := feed.PriceToBeat(context.Background(), btc, win)
	if err != nil {
		t.Fatalf("PriceToBeat: %v", err)
	}
	if p.Price != 93512.50 || p.Source != "binance" {
		t.Errorf("price = %+v", p)
	}

	// Second lookup in the same hour is served from cache.
	if _, err := feed.PriceToBeat(context.Background(), btc, win); err != nil {
		t.Fatalf("cached PriceToBeat: %v", err)
	}
	if dataCalls.Load() != 1 || binanceCalls.Load() != 1 {
		t.Errorf("calls data=%d binance=%d, want 1 each", dataCalls.Load(), binanceCalls.Load())
	}
}

func TestDataAPIAcceptsObjectAndNumber(t *testing.T) {
	for _, body := range []string{`93500.25`, `{"price": 93500.25}`} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, body)
		}))
		got, err := NewDataAPISource(srv.URL, srv.Client()).OpenPrice(context.Background(), btc, hour)
		srv.Close()
		if err != nil || got != 93500.25 {
			t.Errorf("body %s: got %v, %v", body, got, err)
		}
	}
}

func TestCryptoCompareMatchesHour(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("fsym") != "BTC" || r.URL.Query().Get("e") != "Binance" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		fmt.Fprintf(w, `{"Response":"Success","Data":{"Data":[{"time":%d,"open":1},{"time":%d,"open":93400.5}]}}`,
			hour.Add(-time.Hour).Unix(), hour.Unix())
	}))
	defer srv.Close()

	got, err := NewCryptoCompareSource(srv.URL, srv.Client()).OpenPrice(context.Background(), btc, hour)
	if err != nil || got != 93400.5 {
		t.Errorf("got %v, %v", got, err)
	}
}

func TestFeedAllSourcesFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	feed := New(memory.NewPriceToBeatCache(), time.Hour, testLogger(),
		NewDataAPISource(srv.URL, srv.Client()),
		NewBinanceSource(srv.URL, srv.Client()),
	)
	_, err := feed.PriceToBeat(context.Background(), btc, win)
	if !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
}
