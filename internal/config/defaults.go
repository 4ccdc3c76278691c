package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/talgya/gridmarket/internal/engine"
)

// Default values. The market defaults match engine.DefaultParams.
const (
	DefaultSteps           = 100
	DefaultCheckpointEvery = 25
	DefaultDatabasePath    = "data/marketsim.db"
	DefaultAPIPort         = 8080
	DefaultRateLimit       = 20.0
	DefaultRateBurst       = 40
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
)

// Default returns a configuration with every default applied.
func Default() *Config {
	p := engine.DefaultParams()
	return &Config{
		Market: MarketConfig{
			Sellers: p.NumSellers,
			Buyers:  p.NumBuyers,
			Width:   p.Width,
			Height:  p.Height,
			Seed:    p.Seed,
			Steps:   DefaultSteps,
		},
		Engine: EngineConfig{
			Interval:        0,
			CheckpointEvery: DefaultCheckpointEvery,
		},
		Database: DatabaseConfig{
			Path: DefaultDatabasePath,
		},
		API: APIConfig{
			Port:      DefaultAPIPort,
			RateLimit: DefaultRateLimit,
			RateBurst: DefaultRateBurst,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// setViperDefaults registers every key so AutomaticEnv can override it.
func setViperDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("market.sellers", d.Market.Sellers)
	v.SetDefault("market.buyers", d.Market.Buyers)
	v.SetDefault("market.width", d.Market.Width)
	v.SetDefault("market.height", d.Market.Height)
	v.SetDefault("market.seed", d.Market.Seed)
	v.SetDefault("market.steps", d.Market.Steps)

	v.SetDefault("engine.interval", time.Duration(0))
	v.SetDefault("engine.checkpoint_every", d.Engine.CheckpointEvery)

	v.SetDefault("database.enabled", d.Database.Enabled)
	v.SetDefault("database.path", d.Database.Path)

	v.SetDefault("api.enabled", d.API.Enabled)
	v.SetDefault("api.port", d.API.Port)
	v.SetDefault("api.admin_key", "")
	v.SetDefault("api.rate_limit", d.API.RateLimit)
	v.SetDefault("api.rate_burst", d.API.RateBurst)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}
