package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/hourlyarb/internal/domain"
)

// Default source endpoints.
const (
	DefaultDataAPIURL       = "https://data-api.polymarket.com"
	DefaultBinanceURL       = "https://api.binance.com"
	DefaultCryptoCompareURL = "https://min-api.cryptocompare.com"
)

// Source returns an asset's price at the opening of an hour.
type Source interface {
	Name() string
	OpenPrice(ctx context.Context, asset domain.Asset, hour time.Time) (float64, error)
}

// DataAPISource reads the reference price from the Polymarket data API.
type DataAPISource struct {
	baseURL string
	client  *http.Client
}

// NewDataAPISource creates a DataAPISource.
func NewDataAPISource(baseURL string, client *http.Client) *DataAPISource {
	return &DataAPISource{baseURL: orDefault(baseURL, DefaultDataAPIURL), client: client}
}

func (s *DataAPISource) Name() string { return "polymarket_data_api" }

// OpenPrice accepts either a bare number or {"price": n}.
func (s *DataAPISource) OpenPrice(ctx context.Context, asset domain.Asset, hour time.Time) (float64, error) {
	params := url.Values{}
	params.Set("symbol", asset.BinanceSymbol)
	params.Set("timestamp", strconv.FormatInt(hour.Unix(), 10))

	body, err := get(ctx, s.client, s.baseURL+"/price?"+params.Encode())
	if err != nil {
		return 0, err
	}

	var n float64
	if err := json.Unmarshal(body, &n); err == nil {
		return n, nil
	}
	var obj struct {
		Price json.Number `json:"price"`
	}
	if err := json.Unmarshal(body, &obj); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrMalformed, err)
	}
	return obj.Price.Float64()
}

// BinanceSource reads the 1h kline open from Binance, the venues'
// resolution source.
type BinanceSource struct {
	baseURL string
	client  *http.Client
}

// NewBinanceSource creates a BinanceSource.
func NewBinanceSource(baseURL string, client *http.Client) *BinanceSource {
	return &BinanceSource{baseURL: orDefault(baseURL, DefaultBinanceURL), client: client}
}

func (s *BinanceSource) Name() string { return "binance" }

// OpenPrice returns the open of the 1h kline starting at hour.
func (s *BinanceSource) OpenPrice(ctx context.Context, asset domain.Asset, hour time.Time) (float64, error) {
	params := url.Values{}
	params.Set("symbol", asset.BinanceSymbol)
	params.Set("interval", "1h")
	params.Set("startTime", strconv.FormatInt(hour.UnixMilli(), 10))
	params.Set("limit", "1")

	body, err := get(ctx, s.client, s.baseURL+"/api/v3/klines?"+params.Encode())
	if err != nil {
		return 0, err
	}

	var klines [][]json.RawMessage
	if err := json.Unmarshal(body, &klines); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrMalformed, err)
	}
	if len(klines) == 0 || len(klines[0]) < 2 {
		return 0, fmt.Errorf("binance: no kline for %s: %w", asset.BinanceSymbol, domain.ErrNotFound)
	}
	var open string
	if err := json.Unmarshal(klines[0][1], &open); err != nil {
		return 0, fmt.Errorf("%w: kline open: %v", domain.ErrMalformed, err)
	}
	return strconv.ParseFloat(open, 64)
}

// CryptoCompareSource reads Binance hourly candles mirrored by CryptoCompare.
type CryptoCompareSource struct {
	baseURL string
	client  *http.Client
}

// NewCryptoCompareSource creates a CryptoCompareSource.
func NewCryptoCompareSource(baseURL string, client *http.Client) *CryptoCompareSource {
	return &CryptoCompareSource{baseURL: orDefault(baseURL, DefaultCryptoCompareURL), client: client}
}

func (s *CryptoCompareSource) Name() string { return "cryptocompare_binance" }

// OpenPrice returns the open of the hourly candle starting at hour.
func (s *CryptoCompareSource) OpenPrice(ctx context.Context, asset domain.Asset, hour time.Time) (float64, error) {
	params := url.Values{}
	params.Set("fsym", asset.Symbol)
	params.Set("tsym", "USDT")
	params.Set("limit", "1")
	params.Set("e", "Binance")
	params.Set("toTs", strconv.FormatInt(hour.Unix(), 10))

	body, err := get(ctx, s.client, s.baseURL+"/data/v2/histohour?"+params.Encode())
	if err != nil {
		return 0, err
	}

	var resp struct {
		Response string `json:"Response"`
		Message  string `json:"Message"`
		Data     struct {
			Data []struct {
				Time int64   `json:"time"`
				Open float64 `json:"open"`
			} `json:"Data"`
		} `json:"Data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrMalformed, err)
	}
	if resp.Response != "Success" {
		return 0, fmt.Errorf("cryptocompare: %w: %s", domain.ErrUpstream, resp.Message)
	}
	points := resp.Data.Data
	for i := len(points) - 1; i >= 0; i-- {
		if points[i].Time == hour.Unix() {
			return points[i].Open, nil
		}
	}
	return 0, fmt.Errorf("cryptocompare: no candle at %d: %w", hour.Unix(), domain.ErrNotFound)
}

func get(ctx context.Context, client *http.Client, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w: %v", domain.ErrUpstream, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d", domain.ErrUpstream, resp.StatusCode)
	}
	return body, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
