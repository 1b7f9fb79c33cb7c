package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Pair selection
	SymbolA string `envconfig:"SYMBOL_A" default:"BTCUSDT"`
	SymbolB string `envconfig:"SYMBOL_B" default:"ETHUSDT"`

	// Feed: live websocket base URL, or a replay file of captured frames.
	// When ReplayFile is set the live feed is not started.
	FeedURL    string `envconfig:"FEED_URL" default:"wss://fstream.binance.com"`
	ReplayFile string `envconfig:"REPLAY_FILE" default:""`

	// Signal parameters
	Cadence           time.Duration `envconfig:"BAR_CADENCE" default:"1s"`
	Window            int           `envconfig:"ROLLING_WINDOW" default:"50"`
	HedgeRatio        *float64      `envconfig:"HEDGE_RATIO"` // unset = estimate by OLS each cycle
	ZThreshold        float64       `envconfig:"Z_THRESHOLD" default:"2.0"`
	Lookback          time.Duration `envconfig:"TICK_LOOKBACK" default:"10m"`
	RecomputeInterval time.Duration `envconfig:"RECOMPUTE_INTERVAL" default:"3s"`

	// Infrastructure
	SQLitePath    string `envconfig:"SQLITE_PATH" default:"data/pairwatch.db"`
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	MetricsAddr   string `envconfig:"METRICS_ADDR" default:":9090"`

	// Alert delivery (both optional; log delivery is always on)
	WebhookURL     string `envconfig:"ALERT_WEBHOOK_URL" default:""`
	TelegramToken  string `envconfig:"TELEGRAM_BOT_TOKEN" default:""`
	TelegramChatID string `envconfig:"TELEGRAM_CHAT_ID" default:""`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads a .env file if present, then maps environment variables
// onto the Config struct and validates it.
func Load() (*Config, error) {
	// .env is optional; production deployments set real env vars.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects parameter combinations the pipeline cannot run with.
func (c *Config) Validate() error {
	c.SymbolA = strings.ToUpper(strings.TrimSpace(c.SymbolA))
	c.SymbolB = strings.ToUpper(strings.TrimSpace(c.SymbolB))

	if c.SymbolA == "" || c.SymbolB == "" {
		return fmt.Errorf("config: SYMBOL_A and SYMBOL_B must be set")
	}
	if c.SymbolA == c.SymbolB {
		return fmt.Errorf("config: SYMBOL_A and SYMBOL_B must differ (got %s)", c.SymbolA)
	}
	if c.Window < 2 {
		return fmt.Errorf("config: ROLLING_WINDOW must be >= 2, got %d", c.Window)
	}
	if c.ZThreshold <= 0 {
		return fmt.Errorf("config: Z_THRESHOLD must be positive, got %g", c.ZThreshold)
	}
	if c.Cadence <= 0 {
		return fmt.Errorf("config: BAR_CADENCE must be positive, got %s", c.Cadence)
	}
	if c.Lookback < c.Cadence {
		return fmt.Errorf("config: TICK_LOOKBACK (%s) must be at least BAR_CADENCE (%s)", c.Lookback, c.Cadence)
	}
	if c.RecomputeInterval <= 0 {
		return fmt.Errorf("config: RECOMPUTE_INTERVAL must be positive, got %s", c.RecomputeInterval)
	}
	return nil
}

// Symbols returns the two tracked symbols in A, B order.
func (c *Config) Symbols() []string {
	return []string{c.SymbolA, c.SymbolB}
}
