// Package config loads application configuration from an optional YAML file
// with environment variable overrides. Risk limits are plain data handed to
// the portfolio constructor, never read from ambient state.
package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"trading-core/internal/portfolio"
)

// Config holds all application configuration.
type Config struct {
	// Account
	AccountID      string  `yaml:"account_id"`
	BaseCurrency   string  `yaml:"base_currency"`
	InitialBalance float64 `yaml:"initial_balance"`

	// Risk limits
	Risk portfolio.RiskLimits `yaml:"risk"`

	// Orders
	DefaultTimeInForce string `yaml:"default_time_in_force"`

	// Infrastructure
	SQLitePath    string `yaml:"sqlite_path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	EventStream   string `yaml:"event_stream"`
	MetricsAddr   string `yaml:"metrics_addr"`

	// Mark price feed
	FeedURL string `yaml:"feed_url"`

	// Paper venue
	SlippageBps float64 `yaml:"slippage_bps"`

	LogLevel string `yaml:"log_level"`
}

func defaults() *Config {
	return &Config{
		AccountID:          "default",
		BaseCurrency:       "USD",
		InitialBalance:     100000,
		Risk:               portfolio.DefaultRiskLimits(),
		DefaultTimeInForce: "GTC",
		SQLitePath:         "data/orders.db",
		RedisAddr:          "localhost:6379",
		EventStream:        "orders:events",
		MetricsAddr:        ":9090",
		SlippageBps:        5,
		LogLevel:           "info",
	}
}

// Load reads the YAML file at path (skipped when path is empty), then
// applies environment overrides. Unset values keep their defaults.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.AccountID, "TRADING_ACCOUNT_ID")
	setString(&c.BaseCurrency, "TRADING_BASE_CURRENCY")
	setFloat(&c.InitialBalance, "TRADING_INITIAL_BALANCE")

	setFloat(&c.Risk.MaxPositionSize, "TRADING_MAX_POSITION_SIZE")
	setFloat(&c.Risk.MaxDailyLoss, "TRADING_MAX_DAILY_LOSS")
	setFloat(&c.Risk.MaxLeverage, "TRADING_MAX_LEVERAGE")
	setFloat(&c.Risk.ConcentrationLimitPct, "TRADING_CONCENTRATION_LIMIT_PCT")
	setFloat(&c.Risk.StopLossPct, "TRADING_STOP_LOSS_PCT")

	setString(&c.DefaultTimeInForce, "TRADING_DEFAULT_TIF")
	setString(&c.SQLitePath, "TRADING_SQLITE_PATH")
	setString(&c.RedisAddr, "TRADING_REDIS_ADDR")
	setString(&c.RedisPassword, "TRADING_REDIS_PASSWORD")
	setString(&c.EventStream, "TRADING_EVENT_STREAM")
	setString(&c.MetricsAddr, "TRADING_METRICS_ADDR")
	setString(&c.FeedURL, "TRADING_FEED_URL")
	setFloat(&c.SlippageBps, "TRADING_SLIPPAGE_BPS")
	setString(&c.LogLevel, "TRADING_LOG_LEVEL")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
