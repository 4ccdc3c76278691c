// Package config loads run configuration from a YAML file, the environment
// and defaults, in that order of precedence (environment wins).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/talgya/gridmarket/internal/engine"
)

// EnvPrefix prefixes every environment override, e.g. MARKETSIM_MARKET_SELLERS.
const EnvPrefix = "MARKETSIM"

// Config is the main configuration struct combining all sub-configs.
type Config struct {
	Market   MarketConfig   `mapstructure:"market"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Database DatabaseConfig `mapstructure:"database"`
	API      APIConfig      `mapstructure:"api"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// MarketConfig sizes the simulated market.
type MarketConfig struct {
	Sellers int   `mapstructure:"sellers" validate:"gt=0"`
	Buyers  int   `mapstructure:"buyers" validate:"gt=0"`
	Width   int   `mapstructure:"width" validate:"gt=0"`
	Height  int   `mapstructure:"height" validate:"gt=0"`
	Seed    int64 `mapstructure:"seed"`
	Steps   int   `mapstructure:"steps" validate:"gte=0"`
}

// EngineConfig paces the runner.
type EngineConfig struct {
	Interval        time.Duration `mapstructure:"interval" validate:"gte=0"`
	CheckpointEvery int           `mapstructure:"checkpoint_every" validate:"gte=0"`
}

// DatabaseConfig controls metrics persistence.
type DatabaseConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path" validate:"required_if=Enabled true"`
}

// APIConfig controls the observation API.
type APIConfig struct {
	Enabled   bool    `mapstructure:"enabled"`
	Port      int     `mapstructure:"port" validate:"gte=0,lte=65535"`
	AdminKey  string  `mapstructure:"admin_key"`
	RateLimit float64 `mapstructure:"rate_limit" validate:"gt=0"` // Requests per second per client
	RateBurst int     `mapstructure:"rate_burst" validate:"gt=0"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// Params converts the market section into simulation parameters.
func (c *Config) Params() engine.Params {
	return engine.Params{
		NumSellers: c.Market.Sellers,
		NumBuyers:  c.Market.Buyers,
		Width:      c.Market.Width,
		Height:     c.Market.Height,
		Seed:       c.Market.Seed,
	}
}

// LoadConfig loads configuration with priority:
// 1. Environment variables (highest priority)
// 2. Config file (marketsim.yaml)
// 3. Defaults (lowest priority)
func LoadConfig(configPath string) (*Config, error) {
	// Load .env file if it exists (doesn't error if missing)
	_ = godotenv.Load()

	v := viper.New()
	setViperDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("marketsim")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := ValidateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}
