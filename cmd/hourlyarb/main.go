// Command hourlyarb finds hedges between the Kalshi and Polymarket hourly
// crypto markets. It loads configuration, validates it, sets up signal
// handling and runs the configured mode. "hourlyarb encrypt-key" encrypts a
// Kalshi private key for storage at rest.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alanyoungcy/hourlyarb/internal/app"
	"github.com/alanyoungcy/hourlyarb/internal/config"
	"github.com/alanyoungcy/hourlyarb/internal/crypto"
)

const defaultConfigPath = "hourlyarb.toml"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "encrypt-key" {
		if err := encryptKey(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "encrypt-key: %v\n", err)
			os.Exit(1)
		}
		return
	}

	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	flag.Parse()

	// Setup structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// A missing default file means "defaults + environment".
	path := *configPath
	if path == defaultConfigPath {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}

	// Load configuration.
	cfg, err := config.Load(path)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// Set log level from config.
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("hourlyarb starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", path),
	)
	logger.Debug("effective configuration", slog.Any("config", config.RedactedConfig(cfg)))

	// Create the application.
	application := app.New(cfg, logger)
	defer application.Close()

	// Setup signal handling for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Run the application.
	if err := application.Run(ctx); err != nil {
		// context.Canceled is expected on clean shutdown.
		if errors.Is(err, context.Canceled) {
			logger.Info("application shut down gracefully")
		} else {
			logger.Error("application exited with error",
				slog.String("error", err.Error()),
			)
			application.Close()
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	}

	logger.Info("hourlyarb stopped")
}

// encryptKey reads a PEM key and writes its password-encrypted form.
func encryptKey(args []string) error {
	fset := flag.NewFlagSet("encrypt-key", flag.ContinueOnError)
	in := fset.String("in", "", "PEM private key to encrypt")
	out := fset.String("out", "", "destination of the encrypted key")
	if err := fset.Parse(args); err != nil {
		return err
	}
	if *in == "" || *out == "" {
		return errors.New("-in and -out are required")
	}
	password := os.Getenv("HOURLYARB_KALSHI_KEY_PASSWORD")
	if password == "" {
		return errors.New("set HOURLYARB_KALSHI_KEY_PASSWORD")
	}

	pemBytes, err := os.ReadFile(*in)
	if err != nil {
		return err
	}
	sealed, err := crypto.EncryptPEM(pemBytes, password)
	if err != nil {
		return err
	}
	return os.WriteFile(*out, sealed, 0o600)
}
