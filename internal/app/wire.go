package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/hourlyarb/internal/arbitrage"
	s3blob "github.com/alanyoungcy/hourlyarb/internal/blob/s3"
	"github.com/alanyoungcy/hourlyarb/internal/cache/memory"
	"github.com/alanyoungcy/hourlyarb/internal/cache/redis"
	"github.com/alanyoungcy/hourlyarb/internal/config"
	"github.com/alanyoungcy/hourlyarb/internal/crypto"
	"github.com/alanyoungcy/hourlyarb/internal/domain"
	"github.com/alanyoungcy/hourlyarb/internal/notify"
	"github.com/alanyoungcy/hourlyarb/internal/platform/kalshi"
	"github.com/alanyoungcy/hourlyarb/internal/platform/polymarket"
	"github.com/alanyoungcy/hourlyarb/internal/pricefeed"
	"github.com/alanyoungcy/hourlyarb/internal/quote"
	"github.com/alanyoungcy/hourlyarb/internal/resolver"
	"github.com/alanyoungcy/hourlyarb/internal/server/handler"
	"github.com/alanyoungcy/hourlyarb/internal/service"
	"github.com/alanyoungcy/hourlyarb/internal/store/postgres"
)

// Dependencies bundles everything the modes need. Optional backends are nil
// when disabled in the configuration.
type Dependencies struct {
	// Core
	Service *service.OpportunityService
	Books   *polymarket.WSClient

	// Caches
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Persistence
	OpportunityStore domain.OpportunityStore

	// Blob storage
	Archive *s3blob.SnapshotArchiver

	// Notifications
	Notifier *notify.Notifier

	// Health checks of the wired backends, keyed by name.
	Checks map[string]handler.Checker

	// Janitors run periodically to evict expired in-process state.
	Janitors []func()
}

// needsEvaluation returns true for modes that evaluate venues locally.
func needsEvaluation(mode string) bool {
	return mode != "watch"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(what string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", what, err)
	}

	deps := &Dependencies{Checks: make(map[string]handler.Checker)}

	if !needsEvaluation(cfg.Mode) {
		return deps, cleanup, nil
	}

	// --- Redis ---
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		c, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fail("redis", err)
		}
		redisClient = c
		closers = append(closers, func() { _ = c.Close() })

		deps.RateLimiter = redis.NewRateLimiter(c)
		deps.LockManager = redis.NewLockManager(c)
		deps.SignalBus = redis.NewSignalBus(c)
		deps.Checks["redis"] = c.Ping
	}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail("postgres", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail("postgres migrations", err)
			}
		}
		deps.OpportunityStore = postgres.NewOpportunityStore(pgClient.Pool())
		deps.Checks["postgres"] = pgClient.Pool().Ping
	}

	// --- S3 snapshot archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail("s3", err)
		}
		deps.Archive = s3blob.NewSnapshotArchiver(s3blob.NewWriter(s3Client), cfg.S3.Prefix, logger)
		deps.Checks["s3"] = s3Client.Health
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramAPI,
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Venues ---
	kalshiClient := kalshi.NewClient(cfg.Venues.Kalshi.BaseURL, cfg.Venues.Kalshi.APIKeyID, cfg.HTTP.Timeout.Duration)
	pemBytes, err := crypto.LoadPEM(crypto.KeyConfig{
		PEM:              cfg.Venues.Kalshi.PrivateKeyPEM,
		PEMPath:          cfg.Venues.Kalshi.PrivateKeyPath,
		EncryptedKeyPath: cfg.Venues.Kalshi.EncryptedKeyPath,
		KeyPassword:      cfg.Venues.Kalshi.KeyPassword,
	})
	switch {
	case errors.Is(err, crypto.ErrNoKey):
		logger.Info("kalshi requests are unsigned (no private key configured)")
	case err != nil:
		return fail("kalshi key", err)
	default:
		if err := kalshiClient.SetRSAPrivateKey(pemBytes); err != nil {
			return fail("kalshi key", err)
		}
	}
	gamma := polymarket.NewGammaClient(cfg.Venues.Polymarket.GammaURL, cfg.HTTP.Timeout.Duration)
	deps.Books = polymarket.NewWSClient(cfg.Venues.Polymarket.WSURL, logger)

	// --- Discovery ---
	var discovery domain.DiscoveryCache
	switch cfg.Discovery.Backend {
	case "redis":
		discovery = redis.NewDiscoveryCache(redisClient)
	default:
		mem := memory.NewDiscoveryCache()
		deps.Janitors = append(deps.Janitors, mem.Cleanup)
		discovery = mem
	}
	res := resolver.New(resolver.NewKalshiLister(kalshiClient), discovery, cfg.Discovery.TTL.Duration, logger)

	// --- Price to beat ---
	var prices service.PriceFeed
	if cfg.PriceFeed.Enabled {
		var cache domain.PriceToBeatCache = memory.NewPriceToBeatCache()
		if redisClient != nil {
			cache = redis.NewPriceToBeatCache(redisClient)
		}
		httpClient := &http.Client{Timeout: cfg.HTTP.Timeout.Duration}
		prices = pricefeed.New(cache, cfg.PriceFeed.TTL.Duration, logger,
			pricefeed.NewDataAPISource(cfg.Venues.Polymarket.DataAPIURL, httpClient),
			pricefeed.NewBinanceSource(cfg.PriceFeed.BinanceURL, httpClient),
			pricefeed.NewCryptoCompareSource(cfg.PriceFeed.CryptoCompareURL, httpClient),
		)
	}

	// --- Evaluation ---
	fees, err := cfg.FeeTable()
	if err != nil {
		return fail("fees", err)
	}
	kPolicy, err := cfg.KalshiPolicy()
	if err != nil {
		return fail("kalshi window policy", err)
	}
	pPolicy, err := cfg.PolymarketPolicy()
	if err != nil {
		return fail("polymarket window policy", err)
	}
	deps.Service = service.NewOpportunityService(
		res,
		quote.NewFetcher(kalshiClient, gamma, cfg.HTTP.QuoteTimeout.Duration),
		prices,
		arbitrage.NewEvaluator(arbitrage.Config{Stake: cfg.Evaluator.Stake, Fees: fees}),
		service.OpportunityConfig{
			Assets:     cfg.Assets,
			Kalshi:     kPolicy,
			Polymarket: pPolicy,
			MaxStrikes: cfg.Evaluator.MaxStrikes,
		},
		logger,
	)

	return deps, cleanup, nil
}
