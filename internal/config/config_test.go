package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadAndValidate(t *testing.T) {
	// Create temp config file
	content := `
pricing:
  spot_price: 250
  strike: 240
  days_to_maturity: 30
  volatility: 0.35
  risk_free_rate: 0.04

grid:
  points: 12
  mode: pnl
  position_units: 5
  spot_min: 200
  spot_max: 300

allocation:
  balance: 25000
  probability_of_profit: 0.65
  fallback_volatility_index: 15

skew:
  enabled: true
  tickers:
    - AAPL
    - MSFT
  expiration: "2025-01-17"
  poll_interval: 30m

telegram:
  bot_token: "test_token"
  chat_id: "12345"
  enabled: true

logging:
  level: "debug"
  format: "json"
`
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Remove(tmpfile.Name()) }()

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	// Test Load
	cfg, err := Load(tmpfile.Name())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Verify values
	if cfg.Pricing.SpotPrice != 250 || cfg.Pricing.Strike != 240 {
		t.Errorf("Unexpected pricing: %+v", cfg.Pricing)
	}
	if cfg.Grid.Points != 12 || cfg.Grid.Mode != "pnl" || cfg.Grid.PositionUnits != 5 {
		t.Errorf("Unexpected grid: %+v", cfg.Grid)
	}
	if cfg.Grid.VolMin != 0 {
		t.Errorf("Expected default vol_min 0, got %f", cfg.Grid.VolMin)
	}
	if cfg.Skew.PollInterval != 30*time.Minute {
		t.Errorf("Unexpected poll interval: %v", cfg.Skew.PollInterval)
	}
	if len(cfg.Skew.Tickers) != 2 {
		t.Errorf("Expected 2 tickers, got %d", len(cfg.Skew.Tickers))
	}
	if cfg.MarketData.BaseURL != "https://query1.finance.yahoo.com" {
		t.Errorf("Unexpected default base URL: %s", cfg.MarketData.BaseURL)
	}
	if cfg.MarketData.RetryDelayBase != time.Second {
		t.Errorf("Unexpected default retry delay: %v", cfg.MarketData.RetryDelayBase)
	}

	// Test Validate
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Allocation.FallbackVolatilityIndex != 15 {
		t.Errorf("Expected fallback volatility index 15, got %f", cfg.Allocation.FallbackVolatilityIndex)
	}
	if cfg.Grid.Points != 10 {
		t.Errorf("Expected 10 grid points, got %d", cfg.Grid.Points)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("OPTIONLAB_ALLOCATION_BALANCE", "5000")
	t.Setenv("OPTIONLAB_LOGGING_LEVEL", "warn")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Allocation.Balance != 5000 {
		t.Errorf("Expected balance from env, got %f", cfg.Allocation.Balance)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Expected log level from env, got %s", cfg.Logging.Level)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/optionlab.yaml"); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return cfg
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing telegram token when enabled", func(c *Config) { c.Telegram.Enabled = true; c.Telegram.ChatID = "1" }},
		{"zero strike", func(c *Config) { c.Pricing.Strike = 0 }},
		{"negative volatility", func(c *Config) { c.Pricing.Volatility = -0.2 }},
		{"probability of one", func(c *Config) { c.Allocation.ProbabilityOfProfit = 1 }},
		{"zero balance", func(c *Config) { c.Allocation.Balance = 0 }},
		{"unknown grid mode", func(c *Config) { c.Grid.Mode = "heat" }},
		{"zero grid points", func(c *Config) { c.Grid.Points = 0 }},
		{"inverted spot bounds", func(c *Config) { c.Grid.SpotMin = 120; c.Grid.SpotMax = 80 }},
		{"spot min without max", func(c *Config) { c.Grid.SpotMin = 80; c.Grid.SpotMax = 0 }},
		{"spot max without min", func(c *Config) { c.Grid.SpotMin = 0; c.Grid.SpotMax = 120 }},
		{"vol min without max", func(c *Config) { c.Grid.VolMin = 0.1; c.Grid.VolMax = 0 }},
		{"skew without tickers", func(c *Config) { c.Skew.Enabled = true }},
		{"bad expiration", func(c *Config) { c.Skew.Enabled = true; c.Skew.Tickers = []string{"AAPL"}; c.Skew.Expiration = "Jan 17" }},
		{"short poll interval", func(c *Config) {
			c.Skew.Enabled = true
			c.Skew.Tickers = []string{"AAPL"}
			c.Skew.PollInterval = 10 * time.Second
		}},
		{"invalid log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"invalid log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Validate() error = nil, want error")
			}
		})
	}
}
