package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Pricing    PricingConfig    `mapstructure:"pricing"`
	Grid       GridConfig       `mapstructure:"grid"`
	Allocation AllocationConfig `mapstructure:"allocation"`
	Skew       SkewConfig       `mapstructure:"skew"`
	MarketData MarketDataConfig `mapstructure:"marketdata"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// PricingConfig holds the baseline contract
type PricingConfig struct {
	SpotPrice      float64 `mapstructure:"spot_price"`
	Strike         float64 `mapstructure:"strike"`
	DaysToMaturity float64 `mapstructure:"days_to_maturity"`
	Volatility     float64 `mapstructure:"volatility"`
	RiskFreeRate   float64 `mapstructure:"risk_free_rate"`
}

// GridConfig holds sensitivity grid settings. Zero bounds derive from the baseline.
type GridConfig struct {
	Points        int     `mapstructure:"points"`
	Mode          string  `mapstructure:"mode"`
	PositionUnits int     `mapstructure:"position_units"`
	SpotMin       float64 `mapstructure:"spot_min"`
	SpotMax       float64 `mapstructure:"spot_max"`
	VolMin        float64 `mapstructure:"vol_min"`
	VolMax        float64 `mapstructure:"vol_max"`
}

// AllocationConfig holds position sizing inputs
type AllocationConfig struct {
	Balance                 float64 `mapstructure:"balance"`
	ProbabilityOfProfit     float64 `mapstructure:"probability_of_profit"`
	FallbackVolatilityIndex float64 `mapstructure:"fallback_volatility_index"`
	FetchVolatilityIndex    bool    `mapstructure:"fetch_volatility_index"`
}

// SkewConfig holds CPIV scan settings
type SkewConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Tickers      []string      `mapstructure:"tickers"`
	Expiration   string        `mapstructure:"expiration"` // empty = all listed expirations
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxParallel  int           `mapstructure:"max_parallel"`
	TopK         int           `mapstructure:"top_k"`
}

// MarketDataConfig holds market data API configuration
type MarketDataConfig struct {
	BaseURL               string        `mapstructure:"base_url"`
	VolatilityIndexSymbol string        `mapstructure:"volatility_index_symbol"`
	Timeout               time.Duration `mapstructure:"timeout"`
	MaxRetries            int           `mapstructure:"max_retries"`
	RetryDelayBase        time.Duration `mapstructure:"retry_delay_base"`
	MaxIdleConns          int           `mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost   int           `mapstructure:"max_idle_conns_per_host"`
	IdleConnTimeout       time.Duration `mapstructure:"idle_conn_timeout"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
// An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("OPTIONLAB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	v.SetDefault("pricing.spot_price", 100.0)
	v.SetDefault("pricing.strike", 100.0)
	v.SetDefault("pricing.days_to_maturity", 45.0)
	v.SetDefault("pricing.volatility", 0.2)
	v.SetDefault("pricing.risk_free_rate", 0.05)

	v.SetDefault("grid.points", 10)
	v.SetDefault("grid.mode", "price")
	v.SetDefault("grid.position_units", 1)
	v.SetDefault("grid.spot_min", 0.0) // 0 = 80% of spot
	v.SetDefault("grid.spot_max", 0.0) // 0 = 120% of spot
	v.SetDefault("grid.vol_min", 0.0)  // 0 = 50% of volatility
	v.SetDefault("grid.vol_max", 0.0)  // 0 = 150% of volatility

	v.SetDefault("allocation.balance", 10000.0)
	v.SetDefault("allocation.probability_of_profit", 0.70)
	v.SetDefault("allocation.fallback_volatility_index", 15.0)
	v.SetDefault("allocation.fetch_volatility_index", true)

	v.SetDefault("skew.enabled", false)
	v.SetDefault("skew.tickers", []string{})
	v.SetDefault("skew.expiration", "")
	v.SetDefault("skew.poll_interval", "0s") // 0 = single scan
	v.SetDefault("skew.max_parallel", 8)
	v.SetDefault("skew.top_k", 10)

	v.SetDefault("marketdata.base_url", "https://query1.finance.yahoo.com")
	v.SetDefault("marketdata.volatility_index_symbol", "^VIX")
	v.SetDefault("marketdata.timeout", "15s")
	v.SetDefault("marketdata.max_retries", 3)
	v.SetDefault("marketdata.retry_delay_base", "1s")
	v.SetDefault("marketdata.max_idle_conns", 20)
	v.SetDefault("marketdata.max_idle_conns_per_host", 10)
	v.SetDefault("marketdata.idle_conn_timeout", "90s")

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Pricing values are re-checked by the engine; these catch typos early.
	if c.Pricing.SpotPrice <= 0 {
		return fmt.Errorf("pricing.spot_price must be positive")
	}
	if c.Pricing.Strike <= 0 {
		return fmt.Errorf("pricing.strike must be positive")
	}
	if c.Pricing.DaysToMaturity <= 0 {
		return fmt.Errorf("pricing.days_to_maturity must be positive")
	}
	if c.Pricing.Volatility <= 0 {
		return fmt.Errorf("pricing.volatility must be positive")
	}

	if c.Grid.Points < 1 || c.Grid.Points > 200 {
		return fmt.Errorf("grid.points must be between 1 and 200")
	}
	validModes := map[string]bool{"price": true, "pnl": true}
	if !validModes[strings.ToLower(c.Grid.Mode)] {
		return fmt.Errorf("grid.mode must be one of: price, pnl")
	}
	if c.Grid.PositionUnits < 1 {
		return fmt.Errorf("grid.position_units must be at least 1")
	}
	if c.Grid.SpotMin < 0 || c.Grid.SpotMax < 0 || c.Grid.VolMin < 0 || c.Grid.VolMax < 0 {
		return fmt.Errorf("grid bounds must not be negative")
	}
	if (c.Grid.SpotMin > 0) != (c.Grid.SpotMax > 0) {
		return fmt.Errorf("grid.spot_min and grid.spot_max must be set together")
	}
	if (c.Grid.VolMin > 0) != (c.Grid.VolMax > 0) {
		return fmt.Errorf("grid.vol_min and grid.vol_max must be set together")
	}
	if c.Grid.SpotMin > 0 && c.Grid.SpotMax > 0 && c.Grid.SpotMin > c.Grid.SpotMax {
		return fmt.Errorf("grid.spot_min must not exceed grid.spot_max")
	}
	if c.Grid.VolMin > 0 && c.Grid.VolMax > 0 && c.Grid.VolMin > c.Grid.VolMax {
		return fmt.Errorf("grid.vol_min must not exceed grid.vol_max")
	}

	if c.Allocation.Balance <= 0 {
		return fmt.Errorf("allocation.balance must be positive")
	}
	if c.Allocation.ProbabilityOfProfit < 0 || c.Allocation.ProbabilityOfProfit >= 1 {
		return fmt.Errorf("allocation.probability_of_profit must be in [0, 1)")
	}
	if c.Allocation.FallbackVolatilityIndex < 0 {
		return fmt.Errorf("allocation.fallback_volatility_index must not be negative")
	}

	if c.Skew.Enabled {
		if len(c.Skew.Tickers) == 0 {
			return fmt.Errorf("skew.tickers must contain at least one ticker when skew is enabled")
		}
		if c.Skew.Expiration != "" {
			if _, err := time.Parse("2006-01-02", c.Skew.Expiration); err != nil {
				return fmt.Errorf("skew.expiration must be YYYY-MM-DD")
			}
		}
		if c.Skew.PollInterval != 0 && c.Skew.PollInterval < 1*time.Minute {
			return fmt.Errorf("skew.poll_interval must be 0 or at least 1 minute")
		}
	}
	if c.Skew.MaxParallel < 1 {
		return fmt.Errorf("skew.max_parallel must be at least 1")
	}
	if c.Skew.TopK < 1 {
		return fmt.Errorf("skew.top_k must be at least 1")
	}

	if c.MarketData.BaseURL == "" {
		return fmt.Errorf("marketdata.base_url is required")
	}
	if c.MarketData.Timeout <= 0 {
		return fmt.Errorf("marketdata.timeout must be positive")
	}
	if c.MarketData.MaxRetries < 1 {
		return fmt.Errorf("marketdata.max_retries must be at least 1")
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
