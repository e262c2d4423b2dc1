package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/alanyoungcy/hourlyarb/internal/domain"
	"github.com/joho/godotenv"
)

// Load merges the TOML file at path onto the built-in defaults, then applies
// HOURLYARB_* environment overrides. An empty path skips the file. The result
// is not validated; call Config.Validate.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides overwrites fields whose HOURLYARB_* variable is set, so
// secrets can be injected at deploy time without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Top-level ──
	setStr(&cfg.Mode, "HOURLYARB_MODE")
	setStr(&cfg.LogLevel, "HOURLYARB_LOG_LEVEL")
	filterAssets(&cfg.Assets, "HOURLYARB_ASSETS")

	// ── Kalshi ──
	setStr(&cfg.Venues.Kalshi.BaseURL, "HOURLYARB_KALSHI_BASE_URL")
	setStr(&cfg.Venues.Kalshi.APIKeyID, "HOURLYARB_KALSHI_API_KEY_ID")
	setStr(&cfg.Venues.Kalshi.PrivateKeyPEM, "HOURLYARB_KALSHI_PRIVATE_KEY_PEM")
	setStr(&cfg.Venues.Kalshi.PrivateKeyPath, "HOURLYARB_KALSHI_PRIVATE_KEY_PATH")
	setStr(&cfg.Venues.Kalshi.EncryptedKeyPath, "HOURLYARB_KALSHI_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Venues.Kalshi.KeyPassword, "HOURLYARB_KALSHI_KEY_PASSWORD")
	setStr(&cfg.Venues.Kalshi.WindowPolicy, "HOURLYARB_KALSHI_WINDOW_POLICY")
	setInt(&cfg.Venues.Kalshi.WindowOffset, "HOURLYARB_KALSHI_WINDOW_OFFSET")

	// ── Polymarket ──
	setStr(&cfg.Venues.Polymarket.GammaURL, "HOURLYARB_POLYMARKET_GAMMA_URL")
	setStr(&cfg.Venues.Polymarket.WSURL, "HOURLYARB_POLYMARKET_WS_URL")
	setStr(&cfg.Venues.Polymarket.DataAPIURL, "HOURLYARB_POLYMARKET_DATA_API_URL")
	setStr(&cfg.Venues.Polymarket.WindowPolicy, "HOURLYARB_POLYMARKET_WINDOW_POLICY")
	setInt(&cfg.Venues.Polymarket.WindowOffset, "HOURLYARB_POLYMARKET_WINDOW_OFFSET")

	// ── Discovery / fees / evaluator ──
	setDuration(&cfg.Discovery.TTL, "HOURLYARB_DISCOVERY_TTL")
	setStr(&cfg.Discovery.Backend, "HOURLYARB_DISCOVERY_BACKEND")
	setStr(&cfg.Fees.Kalshi.Model, "HOURLYARB_FEES_KALSHI_MODEL")
	setFloat64(&cfg.Fees.Kalshi.Rate, "HOURLYARB_FEES_KALSHI_RATE")
	setStr(&cfg.Fees.Polymarket.Model, "HOURLYARB_FEES_POLYMARKET_MODEL")
	setFloat64(&cfg.Fees.Polymarket.Rate, "HOURLYARB_FEES_POLYMARKET_RATE")
	setFloat64(&cfg.Evaluator.Stake, "HOURLYARB_EVALUATOR_STAKE")
	setInt(&cfg.Evaluator.MaxStrikes, "HOURLYARB_EVALUATOR_MAX_STRIKES")

	// ── Live sync ──
	setDuration(&cfg.LiveSync.PollInterval, "HOURLYARB_LIVESYNC_POLL_INTERVAL")
	setDuration(&cfg.LiveSync.Lateness, "HOURLYARB_LIVESYNC_LATENESS")
	setDuration(&cfg.LiveSync.BackoffMin, "HOURLYARB_LIVESYNC_BACKOFF_MIN")
	setDuration(&cfg.LiveSync.BackoffMax, "HOURLYARB_LIVESYNC_BACKOFF_MAX")
	setDuration(&cfg.LiveSync.KalshiRefresh, "HOURLYARB_LIVESYNC_KALSHI_REFRESH")

	// ── Price feed / HTTP ──
	setBool(&cfg.PriceFeed.Enabled, "HOURLYARB_PRICEFEED_ENABLED")
	setStr(&cfg.PriceFeed.BinanceURL, "HOURLYARB_PRICEFEED_BINANCE_URL")
	setStr(&cfg.PriceFeed.CryptoCompareURL, "HOURLYARB_PRICEFEED_CRYPTOCOMPARE_URL")
	setDuration(&cfg.PriceFeed.TTL, "HOURLYARB_PRICEFEED_TTL")
	setDuration(&cfg.HTTP.Timeout, "HOURLYARB_HTTP_TIMEOUT")
	setDuration(&cfg.HTTP.QuoteTimeout, "HOURLYARB_HTTP_QUOTE_TIMEOUT")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "HOURLYARB_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "HOURLYARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "HOURLYARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "HOURLYARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "HOURLYARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "HOURLYARB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "HOURLYARB_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "HOURLYARB_REDIS_KEY_PREFIX")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "HOURLYARB_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "HOURLYARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "HOURLYARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "HOURLYARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "HOURLYARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "HOURLYARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "HOURLYARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "HOURLYARB_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "HOURLYARB_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "HOURLYARB_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "HOURLYARB_POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "HOURLYARB_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "HOURLYARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "HOURLYARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "HOURLYARB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "HOURLYARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "HOURLYARB_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "HOURLYARB_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "HOURLYARB_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "HOURLYARB_S3_PREFIX")
	setStr(&cfg.S3.FlushCron, "HOURLYARB_S3_FLUSH_CRON")

	// ── Server ──
	setInt(&cfg.Server.Port, "HOURLYARB_SERVER_PORT")
	setInt(&cfg.Server.Port, "PORT") // platform convention
	setStr(&cfg.Server.PushSource, "HOURLYARB_SERVER_PUSH_SOURCE")
	setStringSlice(&cfg.Server.CORSOrigins, "HOURLYARB_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "HOURLYARB_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "HOURLYARB_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.ShutdownTimeout, "HOURLYARB_SERVER_SHUTDOWN_TIMEOUT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramAPI, "HOURLYARB_NOTIFY_TELEGRAM_API")
	setStr(&cfg.Notify.TelegramToken, "HOURLYARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "HOURLYARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "HOURLYARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "HOURLYARB_NOTIFY_EVENTS")

	// ── Monitor / watch ──
	setDuration(&cfg.Monitor.Interval, "HOURLYARB_MONITOR_INTERVAL")
	setInt(&cfg.Monitor.Parallel, "HOURLYARB_MONITOR_PARALLEL")
	setBool(&cfg.Monitor.UseLock, "HOURLYARB_MONITOR_USE_LOCK")
	setStr(&cfg.Watch.ServerURL, "HOURLYARB_WATCH_SERVER_URL")
	setStr(&cfg.Watch.Asset, "HOURLYARB_WATCH_ASSET")
	setStr(&cfg.Watch.APIKey, "HOURLYARB_WATCH_API_KEY")
}

// filterAssets keeps only the assets whose symbols appear in the comma list.
// Unknown symbols are ignored.
func filterAssets(dst *[]domain.Asset, key string) {
	var want []string
	setStringSlice(&want, key)
	if len(want) == 0 {
		return
	}
	keep := make(map[string]bool, len(want))
	for _, s := range want {
		keep[strings.ToUpper(s)] = true
	}
	out := make([]domain.Asset, 0, len(want))
	for _, a := range *dst {
		if keep[strings.ToUpper(a.Symbol)] {
			out = append(out, a)
		}
	}
	*dst = out
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				cleaned = append(cleaned, t)
			}
		}
		*dst = cleaned
	}
}
