// Package config defines the hourlyarb configuration, its defaults and
// validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/hourlyarb/internal/arbitrage"
	"github.com/alanyoungcy/hourlyarb/internal/domain"
	"github.com/alanyoungcy/hourlyarb/internal/pipeline"
	"github.com/alanyoungcy/hourlyarb/internal/window"
)

// Config is the root configuration. Fields are populated from a TOML file
// and then overridden by HOURLYARB_* environment variables.
type Config struct {
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
	Assets    []domain.Asset  `toml:"assets"`
	Venues    VenuesConfig    `toml:"venues"`
	Discovery DiscoveryConfig `toml:"discovery"`
	Fees      FeesConfig      `toml:"fees"`
	Evaluator EvaluatorConfig `toml:"evaluator"`
	LiveSync  LiveSyncConfig  `toml:"livesync"`
	PriceFeed PriceFeedConfig `toml:"pricefeed"`
	HTTP      HTTPConfig      `toml:"http"`
	Redis     RedisConfig     `toml:"redis"`
	Postgres  PostgresConfig  `toml:"postgres"`
	S3        S3Config        `toml:"s3"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Monitor   MonitorConfig   `toml:"monitor"`
	Watch     WatchConfig     `toml:"watch"`
}

type VenuesConfig struct {
	Kalshi     KalshiConfig     `toml:"kalshi"`
	Polymarket PolymarketConfig `toml:"polymarket"`
}

// KalshiConfig holds the Kalshi REST endpoint, optional signing key and the
// window policy of its hourly events.
type KalshiConfig struct {
	BaseURL          string `toml:"base_url"`
	APIKeyID         string `toml:"api_key_id"`
	PrivateKeyPEM    string `toml:"private_key_pem"`
	PrivateKeyPath   string `toml:"private_key_path"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	WindowPolicy     string `toml:"window_policy"`
	WindowOffset     int    `toml:"window_offset"`
}

// PolymarketConfig holds the Polymarket endpoints and window policy.
type PolymarketConfig struct {
	GammaURL     string `toml:"gamma_url"`
	WSURL        string `toml:"ws_url"`
	DataAPIURL   string `toml:"data_api_url"`
	WindowPolicy string `toml:"window_policy"`
	WindowOffset int    `toml:"window_offset"`
}

// DiscoveryConfig selects the discovery cache. Backend is "memory" or
// "redis".
type DiscoveryConfig struct {
	TTL     duration `toml:"ttl"`
	Backend string   `toml:"backend"`
}

type FeesConfig struct {
	Kalshi     FeeConfig `toml:"kalshi"`
	Polymarket FeeConfig `toml:"polymarket"`
}

// FeeConfig is one venue's fee model ("flat" or "net_winnings") and rate.
type FeeConfig struct {
	Model string  `toml:"model"`
	Rate  float64 `toml:"rate"`
}

type EvaluatorConfig struct {
	Stake      float64 `toml:"stake"`
	MaxStrikes int     `toml:"max_strikes"`
}

// LiveSyncConfig tunes the push/poll merge of live consumers.
type LiveSyncConfig struct {
	PollInterval  duration `toml:"poll_interval"`
	Lateness      duration `toml:"lateness"`
	BackoffMin    duration `toml:"backoff_min"`
	BackoffMax    duration `toml:"backoff_max"`
	KalshiRefresh duration `toml:"kalshi_refresh"`
}

type PriceFeedConfig struct {
	Enabled          bool     `toml:"enabled"`
	BinanceURL       string   `toml:"binance_url"`
	CryptoCompareURL string   `toml:"cryptocompare_url"`
	TTL              duration `toml:"ttl"`
}

// HTTPConfig bounds outbound requests.
type HTTPConfig struct {
	Timeout      duration `toml:"timeout"`
	QuoteTimeout duration `toml:"quote_timeout"`
}

type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
}

type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// S3Config configures hourly snapshot archiving.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
	FlushCron      string `toml:"flush_cron"`
}

// ServerConfig configures the HTTP API. PushSource selects what feeds
// /ws/arbitrage: "live" streams Polymarket books per client, "bus" relays the
// reports a monitor publishes on Redis.
type ServerConfig struct {
	Port            int      `toml:"port"`
	PushSource      string   `toml:"push_source"`
	CORSOrigins     []string `toml:"cors_origins"`
	APIKey          string   `toml:"api_key"`
	RateLimit       int      `toml:"rate_limit"`
	ShutdownTimeout duration `toml:"shutdown_timeout"`
}

type NotifyConfig struct {
	TelegramAPI       string   `toml:"telegram_api"`
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

type MonitorConfig struct {
	Interval duration `toml:"interval"`
	Parallel int      `toml:"parallel"`
	UseLock  bool     `toml:"use_lock"`
}

// WatchConfig points watch mode at a remote hourlyarb server.
type WatchConfig struct {
	ServerURL string `toml:"server_url"`
	Asset     string `toml:"asset"`
	APIKey    string `toml:"api_key"`
}

// duration lets TOML values like "5m" decode into a time.Duration.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Mode:     "server",
		LogLevel: "info",
		Assets:   domain.DefaultAssets(),
		Venues: VenuesConfig{
			Kalshi: KalshiConfig{
				BaseURL:      "https://api.elections.kalshi.com/trade-api/v2",
				WindowPolicy: "by_close_hour",
				WindowOffset: 1,
			},
			Polymarket: PolymarketConfig{
				GammaURL:     "https://gamma-api.polymarket.com",
				WSURL:        "wss://ws-subscriptions-clob.polymarket.com/ws/market",
				DataAPIURL:   "https://data-api.polymarket.com",
				WindowPolicy: "by_open_hour",
				WindowOffset: 0,
			},
		},
		Discovery: DiscoveryConfig{TTL: duration{5 * time.Minute}, Backend: "memory"},
		Fees: FeesConfig{
			Kalshi:     FeeConfig{Model: "flat", Rate: 0.007},
			Polymarket: FeeConfig{Model: "flat", Rate: 0.0001},
		},
		Evaluator: EvaluatorConfig{Stake: 100, MaxStrikes: 0},
		LiveSync: LiveSyncConfig{
			PollInterval:  duration{5 * time.Second},
			Lateness:      duration{3 * time.Second},
			BackoffMin:    duration{time.Second},
			BackoffMax:    duration{30 * time.Second},
			KalshiRefresh: duration{5 * time.Second},
		},
		PriceFeed: PriceFeedConfig{
			Enabled:          true,
			BinanceURL:       "https://api.binance.com",
			CryptoCompareURL: "https://min-api.cryptocompare.com",
			TTL:              duration{2 * time.Hour},
		},
		HTTP: HTTPConfig{Timeout: duration{10 * time.Second}, QuoteTimeout: duration{5 * time.Second}},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			KeyPrefix:  "hourlyarb:",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "hourlyarb",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		S3: S3Config{
			Region:         "us-east-1",
			Bucket:         "hourlyarb",
			ForcePathStyle: true,
			FlushCron:      "5 * * * *",
		},
		Server: ServerConfig{
			Port:            8000,
			PushSource:      "live",
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			ShutdownTimeout: duration{10 * time.Second},
		},
		Notify: NotifyConfig{Events: []string{"opportunity"}},
		Monitor: MonitorConfig{
			Interval: duration{15 * time.Second},
			Parallel: 4,
		},
		Watch: WatchConfig{ServerURL: "http://localhost:8000", Asset: "BTC"},
	}
}

var validModes = map[string]bool{
	"server":  true,
	"monitor": true,
	"full":    true,
	"watch":   true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate returns one error listing every problem found.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) { errs = append(errs, fmt.Sprintf(format, args...)) }

	if !validModes[strings.ToLower(c.Mode)] {
		add("unknown mode %q (valid: server, monitor, full, watch)", c.Mode)
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		add("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}

	if len(c.Assets) == 0 && c.Mode != "watch" {
		add("assets: at least one asset is required")
	}
	seen := make(map[string]bool)
	for i, a := range c.Assets {
		sym := strings.ToUpper(a.Symbol)
		switch {
		case sym == "":
			add("assets[%d]: symbol must not be empty", i)
		case seen[sym]:
			add("assets[%d]: duplicate symbol %s", i, sym)
		}
		seen[sym] = true
		if a.KalshiSeries == "" {
			add("assets[%d]: kalshi_series must not be empty", i)
		}
		if a.PolySlugPrefix == "" {
			add("assets[%d]: polymarket_slug_prefix must not be empty", i)
		}
	}

	if c.Venues.Kalshi.BaseURL == "" {
		add("venues.kalshi: base_url must not be empty")
	}
	if c.Venues.Polymarket.GammaURL == "" {
		add("venues.polymarket: gamma_url must not be empty")
	}
	kp, kerr := c.KalshiPolicy()
	if kerr != nil {
		add("venues.kalshi: %v", kerr)
	}
	pp, perr := c.PolymarketPolicy()
	if perr != nil {
		add("venues.polymarket: %v", perr)
	}
	if kerr == nil && perr == nil && !window.Aligned(kp, pp) {
		add("venues: kalshi %s/%d and polymarket %s/%d select different hours",
			kp.Policy, kp.Offset, pp.Policy, pp.Offset)
	}

	if _, err := c.FeeTable(); err != nil {
		add("fees: %v", err)
	}
	if c.Evaluator.Stake <= 0 {
		add("evaluator: stake must be > 0")
	}
	if c.Evaluator.MaxStrikes < 0 {
		add("evaluator: max_strikes must be >= 0")
	}

	if b := c.Discovery.Backend; b != "memory" && b != "redis" {
		add("discovery: unknown backend %q (valid: memory, redis)", b)
	}
	if c.Discovery.Backend == "redis" && !c.Redis.Enabled {
		add("discovery: backend redis requires redis.enabled")
	}
	if c.Discovery.TTL.Duration <= 0 {
		add("discovery: ttl must be > 0")
	}

	ls := c.LiveSync
	if ls.PollInterval.Duration <= 0 || ls.Lateness.Duration <= 0 {
		add("livesync: poll_interval and lateness must be > 0")
	}
	if ls.BackoffMin.Duration <= 0 || ls.BackoffMax.Duration < ls.BackoffMin.Duration {
		add("livesync: need 0 < backoff_min <= backoff_max")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		add("redis: addr must not be empty")
	}
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" && c.Postgres.Host == "" {
			add("postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			add("postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}
	if c.S3.Enabled {
		if c.S3.Bucket == "" || c.S3.Region == "" {
			add("s3: bucket and region must be set")
		}
		if _, err := c.FlushSchedule(); err != nil {
			add("s3: flush_cron: %v", err)
		}
	}

	if c.Mode == "server" || c.Mode == "full" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			add("server: port must be 1-65535, got %d", c.Server.Port)
		}
		switch c.Server.PushSource {
		case "live":
		case "bus":
			if !c.Redis.Enabled {
				add("server: push_source bus requires redis.enabled")
			}
		default:
			add("server: unknown push_source %q (valid: live, bus)", c.Server.PushSource)
		}
	}
	if c.Mode == "monitor" || c.Mode == "full" {
		if c.Monitor.Interval.Duration <= 0 {
			add("monitor: interval must be > 0")
		}
	}
	if c.Mode == "watch" && (c.Watch.ServerURL == "" || c.Watch.Asset == "") {
		add("watch: server_url and asset must be set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// KalshiPolicy returns the parsed Kalshi window policy.
func (c *Config) KalshiPolicy() (window.VenuePolicy, error) {
	return venuePolicy(c.Venues.Kalshi.WindowPolicy, c.Venues.Kalshi.WindowOffset)
}

// PolymarketPolicy returns the parsed Polymarket window policy.
func (c *Config) PolymarketPolicy() (window.VenuePolicy, error) {
	return venuePolicy(c.Venues.Polymarket.WindowPolicy, c.Venues.Polymarket.WindowOffset)
}

func venuePolicy(name string, offset int) (window.VenuePolicy, error) {
	p, err := window.ParsePolicy(name)
	if err != nil {
		return window.VenuePolicy{}, err
	}
	if offset < 0 {
		return window.VenuePolicy{}, fmt.Errorf("window_offset must be >= 0, got %d", offset)
	}
	return window.VenuePolicy{Policy: p, Offset: offset}, nil
}

// FeeTable converts the fee section for the evaluator.
func (c *Config) FeeTable() (arbitrage.FeeTable, error) {
	table := arbitrage.FeeTable{}
	for venue, fc := range map[domain.Venue]FeeConfig{
		domain.VenueKalshi:     c.Fees.Kalshi,
		domain.VenuePolymarket: c.Fees.Polymarket,
	} {
		m, err := arbitrage.ParseFeeModel(fc.Model)
		if err != nil {
			return nil, err
		}
		if fc.Rate < 0 || fc.Rate >= 1 {
			return nil, fmt.Errorf("%s rate must be in [0, 1), got %v", venue, fc.Rate)
		}
		table[venue] = arbitrage.FeeSchedule{Model: m, Rate: fc.Rate}
	}
	return table, nil
}

// FlushSchedule parses the S3 flush cron in Eastern time, matching the hour
// boundaries snapshots are bucketed by.
func (c *Config) FlushSchedule() (pipeline.Schedule, error) {
	return pipeline.ParseSchedule(c.S3.FlushCron, window.Eastern())
}
