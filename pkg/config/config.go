package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/stitts-dev/fpl-transfers/pkg/logger"
	"github.com/stitts-dev/fpl-transfers/pkg/optimizer"
	"github.com/stitts-dev/fpl-transfers/pkg/prices"
)

type Config struct {
	Env       string `mapstructure:"ENV"`
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// Objective
	HitCost        int     `mapstructure:"TRANSFER_HIT_COST"`
	TiebreakWeight float64 `mapstructure:"TRANSFER_TIEBREAK_WEIGHT"`
	PointsScale    float64 `mapstructure:"TRANSFER_POINTS_SCALE"`

	// Forced exits
	EVFloor                 float64 `mapstructure:"TRANSFER_EV_FLOOR"`
	DoubtfulChanceThreshold int     `mapstructure:"TRANSFER_DOUBTFUL_CHANCE"`

	// Acceptance
	MinGain            float64 `mapstructure:"TRANSFER_MIN_GAIN"`
	ForcedFloor        float64 `mapstructure:"TRANSFER_FORCED_FLOOR"`
	OptimizeCap        int     `mapstructure:"TRANSFER_OPTIMIZE_CAP"`
	HighPriorityGain   float64 `mapstructure:"TRANSFER_HIGH_PRIORITY_GAIN"`
	MediumPriorityGain float64 `mapstructure:"TRANSFER_MEDIUM_PRIORITY_GAIN"`

	// Candidate pool
	ExcludedIDs        []int  `mapstructure:"-"`
	ExcludeUnavailable bool   `mapstructure:"TRANSFER_EXCLUDE_UNAVAILABLE"`
	MaxPerPosition     int    `mapstructure:"TRANSFER_MAX_CANDIDATES_PER_POSITION"`
	SaleFloorPrice     string `mapstructure:"TRANSFER_SALE_FLOOR"`
	SaleFixedBuffer    string `mapstructure:"TRANSFER_SALE_BUFFER"`
	SaleFraction       string `mapstructure:"TRANSFER_SALE_FRACTION"`

	// Solver
	SolveTimeout time.Duration `mapstructure:"TRANSFER_SOLVE_TIMEOUT"`
	NodeLimit    int           `mapstructure:"TRANSFER_NODE_LIMIT"`
	Workers      int           `mapstructure:"TRANSFER_WORKERS"`

	// Live price lookups
	ExternalAPITimeout      time.Duration `mapstructure:"EXTERNAL_API_TIMEOUT"`
	CircuitBreakerThreshold int           `mapstructure:"CIRCUIT_BREAKER_THRESHOLD"`
	CircuitBreakerOpen      time.Duration `mapstructure:"CIRCUIT_BREAKER_OPEN_TIMEOUT"`
	PriceRateLimit          float64       `mapstructure:"PRICE_RATE_LIMIT"`
	PriceRateBurst          int           `mapstructure:"PRICE_RATE_BURST"`
	UseSuppliedPrices       bool          `mapstructure:"PRICE_USE_SUPPLIED_ON_FAILURE"`
}

// LoadConfig reads a .env file from the working directory or its parent,
// then the environment. Environment values win.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("..")

	defaults := optimizer.DefaultPolicy()
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "")
	v.SetDefault("LOG_FORMAT", "")
	v.SetDefault("TRANSFER_HIT_COST", defaults.HitCost)
	v.SetDefault("TRANSFER_TIEBREAK_WEIGHT", defaults.TiebreakWeight)
	v.SetDefault("TRANSFER_POINTS_SCALE", defaults.PointsScale)
	v.SetDefault("TRANSFER_EV_FLOOR", defaults.EVFloor)
	v.SetDefault("TRANSFER_DOUBTFUL_CHANCE", defaults.DoubtfulChanceThreshold)
	v.SetDefault("TRANSFER_MIN_GAIN", defaults.MinGain)
	v.SetDefault("TRANSFER_FORCED_FLOOR", defaults.ForcedAcceptanceFloor)
	v.SetDefault("TRANSFER_OPTIMIZE_CAP", defaults.OptimizeTransferCap)
	v.SetDefault("TRANSFER_HIGH_PRIORITY_GAIN", defaults.HighPriorityGain)
	v.SetDefault("TRANSFER_MEDIUM_PRIORITY_GAIN", defaults.MediumPriorityGain)
	v.SetDefault("TRANSFER_EXCLUDED_IDS", "")
	v.SetDefault("TRANSFER_EXCLUDE_UNAVAILABLE", defaults.ExcludeUnavailableCandidates)
	v.SetDefault("TRANSFER_MAX_CANDIDATES_PER_POSITION", defaults.MaxCandidatesPerPosition)
	v.SetDefault("TRANSFER_SALE_FLOOR", defaults.SaleValue.FloorPrice.String())
	v.SetDefault("TRANSFER_SALE_BUFFER", defaults.SaleValue.FixedBuffer.String())
	v.SetDefault("TRANSFER_SALE_FRACTION", defaults.SaleValue.Fraction.String())
	v.SetDefault("TRANSFER_SOLVE_TIMEOUT", defaults.SolveTimeout.String())
	v.SetDefault("TRANSFER_NODE_LIMIT", defaults.NodeLimit)
	v.SetDefault("TRANSFER_WORKERS", defaults.Workers)

	priceDefaults := prices.DefaultSettings()
	v.SetDefault("EXTERNAL_API_TIMEOUT", priceDefaults.Timeout.String())
	v.SetDefault("CIRCUIT_BREAKER_THRESHOLD", priceDefaults.FailureThreshold)
	v.SetDefault("CIRCUIT_BREAKER_OPEN_TIMEOUT", priceDefaults.OpenTimeout.String())
	v.SetDefault("PRICE_RATE_LIMIT", priceDefaults.RatePerSecond)
	v.SetDefault("PRICE_RATE_BURST", priceDefaults.RateBurst)
	v.SetDefault("PRICE_USE_SUPPLIED_ON_FAILURE", priceDefaults.UseSuppliedOnFailure)

	// Read from environment
	v.AutomaticEnv()

	// Read config file if exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	ids, err := parseIDList(v.GetString("TRANSFER_EXCLUDED_IDS"))
	if err != nil {
		return nil, fmt.Errorf("TRANSFER_EXCLUDED_IDS: %w", err)
	}
	config.ExcludedIDs = ids

	return &config, nil
}

// parseIDList parses a comma-separated list of player ids
func parseIDList(raw string) ([]int, error) {
	var ids []int
	for _, field := range strings.Split(raw, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		id, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("invalid player id %q: %w", field, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// LoggerOptions returns the logging setup for this environment
func (c *Config) LoggerOptions() logger.Options {
	return logger.Options{
		Level:       c.LogLevel,
		Format:      c.LogFormat,
		Development: c.IsDevelopment(),
	}
}

// Policy converts the loaded values into a validated optimizer policy
func (c *Config) Policy() (optimizer.Policy, error) {
	sale := optimizer.SaleValuePolicy{}
	for _, field := range []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"TRANSFER_SALE_FLOOR", c.SaleFloorPrice, &sale.FloorPrice},
		{"TRANSFER_SALE_BUFFER", c.SaleFixedBuffer, &sale.FixedBuffer},
		{"TRANSFER_SALE_FRACTION", c.SaleFraction, &sale.Fraction},
	} {
		d, err := decimal.NewFromString(field.raw)
		if err != nil {
			return optimizer.Policy{}, fmt.Errorf("%s: %w", field.name, err)
		}
		*field.dst = d
	}

	policy := optimizer.DefaultPolicy()
	policy.HitCost = c.HitCost
	policy.TiebreakWeight = c.TiebreakWeight
	policy.PointsScale = c.PointsScale
	policy.EVFloor = c.EVFloor
	policy.DoubtfulChanceThreshold = c.DoubtfulChanceThreshold
	policy.MinGain = c.MinGain
	policy.ForcedAcceptanceFloor = c.ForcedFloor
	policy.OptimizeTransferCap = c.OptimizeCap
	policy.HighPriorityGain = c.HighPriorityGain
	policy.MediumPriorityGain = c.MediumPriorityGain
	policy.ExcludedIDs = c.ExcludedIDs
	policy.ExcludeUnavailableCandidates = c.ExcludeUnavailable
	policy.MaxCandidatesPerPosition = c.MaxPerPosition
	policy.SaleValue = sale
	policy.SolveTimeout = c.SolveTimeout
	policy.NodeLimit = c.NodeLimit
	policy.Workers = c.Workers

	if err := policy.Validate(); err != nil {
		return optimizer.Policy{}, err
	}
	return policy, nil
}

// PriceSettings returns the circuit breaker settings for live price lookups
func (c *Config) PriceSettings() prices.Settings {
	return prices.Settings{
		Timeout:              c.ExternalAPITimeout,
		FailureThreshold:     c.CircuitBreakerThreshold,
		OpenTimeout:          c.CircuitBreakerOpen,
		RatePerSecond:        c.PriceRateLimit,
		RateBurst:            c.PriceRateBurst,
		UseSuppliedOnFailure: c.UseSuppliedPrices,
	}
}
