package domain

import "strings"

// Asset describes how one underlying is listed on each venue.
type Asset struct {
	Symbol           string `json:"symbol" toml:"symbol"`
	Name             string `json:"name" toml:"name"`
	KalshiSeries     string `json:"kalshi_series" toml:"kalshi_series"`
	KalshiMarketBase string `json:"kalshi_market_base" toml:"kalshi_market_base"`
	KalshiSlug       string `json:"kalshi_slug" toml:"kalshi_slug"`
	PolySlugPrefix   string `json:"polymarket_slug_prefix" toml:"polymarket_slug_prefix"`
	BinanceSymbol    string `json:"binance_symbol" toml:"binance_symbol"`
}

// DefaultAssets returns the built-in hourly crypto assets.
func DefaultAssets() []Asset {
	return []Asset{
		{
			Symbol: "BTC", Name: "Bitcoin",
			KalshiSeries: "KXBTCD", KalshiMarketBase: "kxbtcd", KalshiSlug: "bitcoin-price-abovebelow",
			PolySlugPrefix: "bitcoin-up-or-down", BinanceSymbol: "BTCUSDT",
		},
		{
			Symbol: "ETH", Name: "Ethereum",
			KalshiSeries: "KXETHD", KalshiMarketBase: "kxethd", KalshiSlug: "ethereum-price-abovebelow",
			PolySlugPrefix: "ethereum-up-or-down", BinanceSymbol: "ETHUSDT",
		},
		{
			Symbol: "XRP", Name: "XRP",
			KalshiSeries: "KXXRPD", KalshiMarketBase: "kxxrpd", KalshiSlug: "xrp-price-abovebelow",
			PolySlugPrefix: "xrp-up-or-down", BinanceSymbol: "XRPUSDT",
		},
		{
			Symbol: "SOL", Name: "Solana",
			KalshiSeries: "KXSOLD", KalshiMarketBase: "kxsold", KalshiSlug: "solana-price-abovebelow",
			PolySlugPrefix: "solana-up-or-down", BinanceSymbol: "SOLUSDT",
		},
	}
}

// CustomAsset builds an asset from user supplied venue names. Missing Kalshi
// URL parts are derived from the series and the name.
func CustomAsset(name, kalshiSeries, polySlugPrefix, binanceSymbol string) Asset {
	name = strings.TrimSpace(name)
	series := strings.ToUpper(strings.TrimSpace(kalshiSeries))
	return Asset{
		Symbol:           strings.ToUpper(name),
		Name:             name,
		KalshiSeries:     series,
		KalshiMarketBase: strings.ToLower(series),
		KalshiSlug:       strings.ToLower(name) + "-price-abovebelow",
		PolySlugPrefix:   strings.ToLower(strings.TrimSpace(polySlugPrefix)),
		BinanceSymbol:    strings.ToUpper(strings.TrimSpace(binanceSymbol)),
	}
}

// Normalize fills derived fields left empty.
func (a Asset) Normalize() Asset {
	a.Symbol = strings.ToUpper(a.Symbol)
	a.KalshiSeries = strings.ToUpper(a.KalshiSeries)
	if a.Name == "" {
		a.Name = a.Symbol
	}
	if a.KalshiMarketBase == "" {
		a.KalshiMarketBase = strings.ToLower(a.KalshiSeries)
	}
	if a.KalshiSlug == "" {
		a.KalshiSlug = strings.ToLower(a.Name) + "-price-abovebelow"
	}
	return a
}
