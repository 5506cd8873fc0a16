package config

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log      LoggingConfig  `yaml:"log"`
	Venues   VenuesConfig   `yaml:"venues"`
	Strategy StrategyConfig `yaml:"strategy"`
	Exec     ExecConfig     `yaml:"exec"`
	State    StateConfig    `yaml:"state"`
	History  HistoryConfig  `yaml:"history"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Telegram TelegramConfig `yaml:"telegram"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type VenuesConfig struct {
	Backpack VenueConfig `yaml:"backpack"`
	Lighter  VenueConfig `yaml:"lighter"`
}

type VenueConfig struct {
	RESTBaseURL    string        `yaml:"rest_base_url"`
	WSURL          string        `yaml:"ws_url"`
	Timeout        time.Duration `yaml:"timeout"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	MarketIndex    int           `yaml:"market_index"`
}

type StrategyConfig struct {
	Ticker         string        `yaml:"ticker"`
	OrderSize      float64       `yaml:"order_size"`
	LongThreshold  float64       `yaml:"long_threshold"`
	ShortThreshold float64       `yaml:"short_threshold"`
	MaxPosition    float64       `yaml:"max_position"`
	CheckInterval  time.Duration `yaml:"check_interval"`
	MaxQuoteAge    time.Duration `yaml:"max_quote_age"`
	FirstLeg       string        `yaml:"first_leg"`
}

type ExecConfig struct {
	LegTimeout     time.Duration `yaml:"leg_timeout"`
	StatusRetries  int           `yaml:"status_retries"`
	StatusInterval time.Duration `yaml:"status_interval"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type HistoryConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	SampleInterval  time.Duration `yaml:"sample_interval"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

type TelegramConfig struct {
	Enabled                bool          `yaml:"enabled"`
	Token                  string        `yaml:"token"`
	ChatID                 string        `yaml:"chat_id"`
	OperatorEnabled        bool          `yaml:"operator_enabled"`
	OperatorPollInterval   time.Duration `yaml:"operator_poll_interval"`
	OperatorAllowedUserIDs []int64       `yaml:"operator_allowed_user_ids"`
}

// Load reads and defaults a config file. Callers validate after
// applying any command-line overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)
	return &cfg, nil
}

func ApplyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Venues.Backpack.RESTBaseURL == "" {
		cfg.Venues.Backpack.RESTBaseURL = "https://api.backpack.exchange"
	}
	if cfg.Venues.Backpack.WSURL == "" {
		cfg.Venues.Backpack.WSURL = "wss://ws.backpack.exchange"
	}
	if cfg.Venues.Lighter.RESTBaseURL == "" {
		cfg.Venues.Lighter.RESTBaseURL = "https://mainnet.zklighter.elliot.ai"
	}
	if cfg.Venues.Lighter.WSURL == "" {
		cfg.Venues.Lighter.WSURL = "wss://mainnet.zklighter.elliot.ai/stream"
	}
	for _, venue := range []*VenueConfig{&cfg.Venues.Backpack, &cfg.Venues.Lighter} {
		if venue.Timeout == 0 {
			venue.Timeout = 10 * time.Second
		}
		if venue.ReconnectDelay == 0 {
			venue.ReconnectDelay = 3 * time.Second
		}
	}
	if cfg.Strategy.Ticker == "" {
		cfg.Strategy.Ticker = "BTC"
	}
	if cfg.Strategy.LongThreshold == 0 {
		cfg.Strategy.LongThreshold = 5
	}
	if cfg.Strategy.ShortThreshold == 0 {
		cfg.Strategy.ShortThreshold = 5
	}
	if cfg.Strategy.CheckInterval == 0 {
		cfg.Strategy.CheckInterval = 100 * time.Millisecond
	}
	if cfg.Strategy.MaxQuoteAge == 0 {
		cfg.Strategy.MaxQuoteAge = time.Second
	}
	if cfg.Strategy.FirstLeg == "" {
		cfg.Strategy.FirstLeg = "lighter"
	}
	if cfg.Exec.LegTimeout == 0 {
		cfg.Exec.LegTimeout = 5 * time.Second
	}
	if cfg.Exec.StatusRetries == 0 {
		cfg.Exec.StatusRetries = 3
	}
	if cfg.Exec.StatusInterval == 0 {
		cfg.Exec.StatusInterval = 500 * time.Millisecond
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/bl-arb-bot.db"
	}
	if cfg.History.Schema == "" {
		cfg.History.Schema = "public"
	}
	if cfg.History.QueueSize == 0 {
		cfg.History.QueueSize = 256
	}
	if cfg.History.SampleInterval == 0 {
		cfg.History.SampleInterval = 5 * time.Second
	}
	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = ":9090"
	}
	if cfg.Telegram.OperatorPollInterval == 0 {
		cfg.Telegram.OperatorPollInterval = 3 * time.Second
	}
}

func Validate(cfg *Config) error {
	if cfg.Strategy.Ticker == "" {
		return errors.New("strategy.ticker is required")
	}
	if cfg.Strategy.OrderSize <= 0 {
		return errors.New("strategy.order_size must be > 0")
	}
	if cfg.Strategy.LongThreshold < 0 || cfg.Strategy.ShortThreshold < 0 {
		return errors.New("strategy thresholds must be >= 0")
	}
	if cfg.Strategy.MaxPosition < 0 {
		return errors.New("strategy.max_position must be >= 0")
	}
	if cfg.Strategy.MaxPosition > 0 && cfg.Strategy.OrderSize > cfg.Strategy.MaxPosition {
		return errors.New("strategy.order_size exceeds strategy.max_position")
	}
	switch cfg.Strategy.FirstLeg {
	case "lighter", "backpack":
	default:
		return errors.New("strategy.first_leg must be lighter or backpack")
	}
	if cfg.History.Enabled && cfg.History.DSN == "" {
		return errors.New("history.dsn is required when history is enabled")
	}
	return nil
}
