package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DatabasePath        string
	PredictorServiceURL string // empty: use the built-in baseline predictor
	Tickers             []string
	TradingSchedule     string // cron spec for the daily trading pass
	LogLevel            string
	Port                int
	DevMode             bool

	Ruleset Ruleset
}

// Ruleset is the versioned trading configuration. Backtests are only
// reproducible against a fixed ruleset, so all threshold, fee and sizing
// tunables live here rather than as package constants.
type Ruleset struct {
	Version string

	// Threshold engine
	MinSpread  float64 // minimum relative low->high spread to trade at all
	BuyMargin  float64 // buy threshold is set this fraction above predicted low
	SellMargin float64 // sell threshold is set this fraction below predicted high
	TickSize   float64

	// Position sizing
	MaxPositions int
	// true: budget = available / (MaxPositions - held), false: available / MaxPositions
	BudgetPerRemainingSlot bool

	// Fee schedule
	FeePercent    float64
	FeeMinimum    float64
	LowFeePercent float64
	LowFeeMinimum float64
	LowFeeVenues  []string

	// Valuation
	ValuationLookbackDays int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnvAsInt("PORT", 8002),
		DevMode:             getEnvAsBool("DEV_MODE", false),
		DatabasePath:        getEnv("DATABASE_PATH", "./data/ledger.db"),
		PredictorServiceURL: getEnv("PREDICTOR_SERVICE_URL", ""),
		Tickers:             splitList(getEnv("TICKERS", "")),
		TradingSchedule:     getEnv("TRADING_SCHEDULE", "0 0 18 * * MON-FRI"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		Ruleset:             LoadRuleset(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadRuleset reads the trading ruleset from environment variables,
// falling back to the v1 defaults.
func LoadRuleset() Ruleset {
	return Ruleset{
		Version:                getEnv("RULESET_VERSION", "v1"),
		MinSpread:              getEnvAsFloat("MIN_SPREAD", 0.10),
		BuyMargin:              getEnvAsFloat("BUY_MARGIN", 0.02),
		SellMargin:             getEnvAsFloat("SELL_MARGIN", 0.02),
		TickSize:               getEnvAsFloat("TICK_SIZE", 0.1),
		MaxPositions:           getEnvAsInt("MAX_POSITIONS", 10),
		BudgetPerRemainingSlot: getEnvAsBool("BUDGET_PER_REMAINING_SLOT", true),
		FeePercent:             getEnvAsFloat("FEE_PERCENT", 0.002),
		FeeMinimum:             getEnvAsFloat("FEE_MINIMUM", 49),
		LowFeePercent:          getEnvAsFloat("LOW_FEE_PERCENT", 0.0015),
		LowFeeMinimum:          getEnvAsFloat("LOW_FEE_MINIMUM", 29),
		LowFeeVenues:           splitList(getEnv("LOW_FEE_VENUES", "STO,CPH,HEL,OSL")),
		ValuationLookbackDays:  getEnvAsInt("VALUATION_LOOKBACK_DAYS", 5),
	}
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if err := c.Ruleset.Validate(); err != nil {
		return err
	}
	return nil
}

// Validate checks the ruleset for values that would break the engine
func (r Ruleset) Validate() error {
	if r.TickSize <= 0 {
		return fmt.Errorf("TICK_SIZE must be positive, got %v", r.TickSize)
	}
	if r.MaxPositions < 1 {
		return fmt.Errorf("MAX_POSITIONS must be at least 1, got %d", r.MaxPositions)
	}
	if r.MinSpread < 0 || r.BuyMargin < 0 || r.SellMargin < 0 {
		return fmt.Errorf("spread and margins must be non-negative")
	}
	if r.FeePercent < 0 || r.FeeMinimum < 0 || r.LowFeePercent < 0 || r.LowFeeMinimum < 0 {
		return fmt.Errorf("fee tiers must be non-negative")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
