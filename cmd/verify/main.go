package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"bl-arb-bot/internal/book"
	"bl-arb-bot/internal/config"
	"bl-arb-bot/internal/logging"
	"bl-arb-bot/internal/venue"
	"bl-arb-bot/internal/venue/backpack"
	"bl-arb-bot/internal/venue/lighter"
)

const verifyTimeout = 15 * time.Second

// verify checks that credentials and venue endpoints work before the
// bot is trusted with live orders: it signs an authenticated position
// query against each venue and prints the result.
func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	envFile := flag.String("env-file", ".env", "path to env file with credentials")
	flag.Parse()

	if err := config.LoadEnv(*envFile); err != nil {
		fatal(err)
	}

	cfg := &config.Config{}
	if _, err := os.Stat(*configPath); err == nil {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fatal(err)
		}
		cfg = loaded
	}
	config.ApplyDefaults(cfg)
	log := logging.New(config.LoggingConfig{Level: "warn"})
	defer func() { _ = log.Sync() }()

	backpackCreds, err := config.BackpackCredentialsFromEnv()
	if err != nil {
		fatal(err)
	}
	lighterCreds, err := config.LighterCredentialsFromEnv()
	if err != nil {
		fatal(err)
	}

	backpackExec, err := backpack.NewExecutor(cfg.Venues.Backpack, backpackCreds, cfg.Strategy.Ticker, log)
	if err != nil {
		fatal(err)
	}
	lighterExec, err := lighter.NewExecutor(cfg.Venues.Lighter, lighterCreds, cfg.Strategy.Ticker, book.NewStore(), log)
	if err != nil {
		fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), verifyTimeout)
	defer cancel()

	ok := true
	ok = report(ctx, "backpack", backpackExec) && ok
	ok = report(ctx, "lighter", lighterExec) && ok
	if !ok {
		os.Exit(1)
	}
}

func report(ctx context.Context, name string, source venue.PositionSource) bool {
	net, err := source.NetPosition(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: position query failed: %v\n", name, err)
		return false
	}
	fmt.Printf("%s: reachable, net position %.8f\n", name, net)
	return true
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
