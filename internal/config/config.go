package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/couchcryptid/flight-insurance-service/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"json"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	DBPath string `env:"DB_PATH" envDefault:"data/insurance.db"`

	// Product terms. Micro-units: 10_000 = 0.01.
	PremiumMicros   int64 `env:"PREMIUM_MICROS" envDefault:"10000"`
	IndemnityMicros int64 `env:"INDEMNITY_MICROS" envDefault:"50000"`

	// QualifyingConditions drives both verification and payout. Empty entries
	// are dropped during classifier construction.
	QualifyingConditions []string `env:"QUALIFYING_CONDITIONS" envDefault:"hail,flood,rain,snow,thunderstorm"`

	// InsurerToken authenticates insurer-only endpoints (Bearer token).
	InsurerToken string `env:"INSURER_TOKEN"`

	// OpenWeatherMap live-feed configuration. The override field is nil when
	// OPENWEATHER_ENABLED is unset; Load then derives the flag from the key.
	OpenWeatherAPIKey          string        `env:"OPENWEATHER_API_KEY"`
	OpenWeatherEnabled         bool          `env:"-"`
	OpenWeatherEnabledOverride *bool         `env:"OPENWEATHER_ENABLED"`
	OpenWeatherTimeout         time.Duration `env:"OPENWEATHER_TIMEOUT" envDefault:"5s"`
	OpenWeatherCacheSize       int           `env:"OPENWEATHER_CACHE_SIZE" envDefault:"1000"`
	OpenWeatherCacheTTL        time.Duration `env:"OPENWEATHER_CACHE_TTL" envDefault:"10m"`

	// EvalInterval is the period of the background live evaluation pass.
	EvalInterval time.Duration `env:"EVAL_INTERVAL" envDefault:"10m"`

	// Settlement event publishing (feature-flagged the same way).
	KafkaEnabled         bool     `env:"-"`
	KafkaEnabledOverride *bool    `env:"KAFKA_ENABLED"`
	KafkaBrokers         []string `env:"KAFKA_BROKERS"`
	KafkaSettlementTopic string   `env:"KAFKA_SETTLEMENT_TOPIC" envDefault:"policy-settlements"`
}

// Terms returns the configured product terms.
func (c *Config) Terms() domain.Terms {
	return domain.Terms{
		Premium:   domain.Money(c.PremiumMicros),
		Indemnity: domain.Money(c.IndemnityMicros),
	}
}

// Load reads configuration from environment variables, applying defaults where
// unset and validating the result.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	// Feature flags default to "configured implies enabled", with an explicit
	// boolean override.
	cfg.OpenWeatherEnabled = cfg.OpenWeatherAPIKey != ""
	if cfg.OpenWeatherEnabledOverride != nil {
		cfg.OpenWeatherEnabled = *cfg.OpenWeatherEnabledOverride
	}
	cfg.KafkaEnabled = len(cfg.KafkaBrokers) > 0
	if cfg.KafkaEnabledOverride != nil {
		cfg.KafkaEnabled = *cfg.KafkaEnabledOverride
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ShutdownTimeout <= 0 {
		return errors.New("SHUTDOWN_TIMEOUT must be positive")
	}
	if c.DBPath == "" {
		return errors.New("DB_PATH is required")
	}
	if c.PremiumMicros <= 0 {
		return errors.New("PREMIUM_MICROS must be positive")
	}
	if c.IndemnityMicros <= 0 {
		return errors.New("INDEMNITY_MICROS must be positive")
	}
	if len(c.QualifyingConditions) == 0 {
		return errors.New("QUALIFYING_CONDITIONS must not be empty")
	}
	if c.InsurerToken == "" {
		return errors.New("INSURER_TOKEN is required")
	}
	if c.OpenWeatherEnabled && c.OpenWeatherAPIKey == "" {
		return errors.New("OPENWEATHER_ENABLED is true but OPENWEATHER_API_KEY is not set")
	}
	if c.OpenWeatherEnabled {
		if c.OpenWeatherTimeout <= 0 {
			return errors.New("invalid OPENWEATHER_TIMEOUT")
		}
		if c.OpenWeatherCacheSize <= 0 {
			return errors.New("invalid OPENWEATHER_CACHE_SIZE")
		}
		if c.EvalInterval <= 0 {
			return errors.New("invalid EVAL_INTERVAL")
		}
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}
	if c.KafkaEnabled && c.KafkaSettlementTopic == "" {
		return errors.New("KAFKA_SETTLEMENT_TOPIC is required")
	}
	return nil
}
