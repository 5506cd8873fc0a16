package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bl-arb-bot/internal/app"
	"bl-arb-bot/internal/config"
	"bl-arb-bot/internal/logging"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	ticker := flag.String("ticker", "", "instrument ticker, e.g. BTC")
	orderSize := flag.Float64("size", 0, "order size in base units")
	longThreshold := flag.Float64("long-threshold", 0, "long spread entry threshold in quote units")
	shortThreshold := flag.Float64("short-threshold", 0, "short spread entry threshold in quote units")
	maxPosition := flag.Float64("max-position", 0, "per-venue absolute position cap, 0 keeps the config value")
	checkInterval := flag.Duration("check-interval", 0, "spread evaluation interval")
	flag.Parse()

	if err := config.LoadEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	applyFlagOverrides(cfg, *ticker, *orderSize, *longThreshold, *shortThreshold, *maxPosition, *checkInterval)
	if err := config.Validate(cfg); err != nil {
		panic(err)
	}

	log := logging.New(cfg.Log)
	log.Info("config loaded", zap.String("path", *configPath), zap.String("ticker", cfg.Strategy.Ticker))

	application, err := app.New(cfg, log)
	if err != nil {
		log.Error("failed to initialize app", zap.Error(err))
		os.Exit(1)
	}
	log.Info("app initialized")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil && err != context.Canceled {
		log.Error("app terminated", zap.Error(err))
		os.Exit(1)
	}
}

// applyFlagOverrides lets command-line flags win over the config file.
// Zero values mean "not set" and keep the file's value.
func applyFlagOverrides(cfg *config.Config, ticker string, orderSize, longThreshold, shortThreshold, maxPosition float64, checkInterval time.Duration) {
	if ticker != "" {
		cfg.Strategy.Ticker = ticker
	}
	if orderSize > 0 {
		cfg.Strategy.OrderSize = orderSize
	}
	if longThreshold > 0 {
		cfg.Strategy.LongThreshold = longThreshold
	}
	if shortThreshold > 0 {
		cfg.Strategy.ShortThreshold = shortThreshold
	}
	if maxPosition > 0 {
		cfg.Strategy.MaxPosition = maxPosition
	}
	if checkInterval > 0 {
		cfg.Strategy.CheckInterval = checkInterval
	}
}
