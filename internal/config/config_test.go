package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "" +
		"strategy:\n" +
		"  ticker: ETH\n" +
		"  order_size: 0.01\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("expected default log level info, got %q", cfg.Log.Level)
	}
	if cfg.Strategy.LongThreshold != 5 || cfg.Strategy.ShortThreshold != 5 {
		t.Fatalf("expected default thresholds 5/5, got %f/%f", cfg.Strategy.LongThreshold, cfg.Strategy.ShortThreshold)
	}
	if cfg.Strategy.CheckInterval != 100*time.Millisecond {
		t.Fatalf("expected default check interval 100ms, got %s", cfg.Strategy.CheckInterval)
	}
	if cfg.Strategy.MaxQuoteAge != time.Second {
		t.Fatalf("expected default max quote age 1s, got %s", cfg.Strategy.MaxQuoteAge)
	}
	if cfg.Strategy.FirstLeg != "lighter" {
		t.Fatalf("expected default first leg lighter, got %q", cfg.Strategy.FirstLeg)
	}
	if cfg.Exec.LegTimeout != 5*time.Second {
		t.Fatalf("expected default leg timeout 5s, got %s", cfg.Exec.LegTimeout)
	}
	if cfg.Venues.Backpack.ReconnectDelay != 3*time.Second {
		t.Fatalf("expected default reconnect delay 3s, got %s", cfg.Venues.Backpack.ReconnectDelay)
	}
}

func TestValidateRejectsMissingSize(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for missing order size")
	}
}

func TestValidateRejectsSizeAboveCap(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Strategy.OrderSize = 0.5
	cfg.Strategy.MaxPosition = 0.1
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for order size above max position")
	}
}

func TestValidateRejectsUnknownFirstLeg(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Strategy.OrderSize = 0.01
	cfg.Strategy.FirstLeg = "binance"
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for unknown first leg")
	}
}

func TestValidateRequiresHistoryDSN(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Strategy.OrderSize = 0.01
	cfg.History.Enabled = true
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for enabled history without dsn")
	}
}
