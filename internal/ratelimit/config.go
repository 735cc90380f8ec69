package ratelimit

import (
	"fmt"
	"time"
)

// Config tunes pacing and retry behaviour for one upstream. MaxRetries is
// the only retry budget; zero disables retries.
type Config struct {
	Strategy          Strategy      `yaml:"strategy" json:"strategy" mapstructure:"strategy"`
	RequestsPerSec    float64       `yaml:"requests_per_second" json:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int           `yaml:"burst" json:"burst" mapstructure:"burst"`
	FixedDelay        time.Duration `yaml:"fixed_delay" json:"fixed_delay" mapstructure:"fixed_delay"`
	MaxRetries        int           `yaml:"max_retries" json:"max_retries" mapstructure:"max_retries" validate:"gte=0"`
	InitialBackoff    time.Duration `yaml:"initial_backoff" json:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff        time.Duration `yaml:"max_backoff" json:"max_backoff" mapstructure:"max_backoff"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier" json:"backoff_multiplier" mapstructure:"backoff_multiplier"`
}

// DefaultConfig is conservative enough for the CRM sales API.
func DefaultConfig() Config {
	return Config{
		Strategy:          StrategyTokenBucket,
		RequestsPerSec:    2.0,
		Burst:             4,
		FixedDelay:        500 * time.Millisecond,
		MaxRetries:        3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// WithDefaults fills the pacing and backoff fields of cfg that are unset.
// MaxRetries is left alone so that an explicit zero survives.
func WithDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.Strategy == "" {
		cfg.Strategy = def.Strategy
	}
	cfg.RequestsPerSec = positiveOr(cfg.RequestsPerSec, def.RequestsPerSec)
	cfg.Burst = positiveOr(cfg.Burst, def.Burst)
	cfg.FixedDelay = positiveOr(cfg.FixedDelay, def.FixedDelay)
	cfg.InitialBackoff = positiveOr(cfg.InitialBackoff, def.InitialBackoff)
	cfg.MaxBackoff = positiveOr(cfg.MaxBackoff, def.MaxBackoff)
	cfg.BackoffMultiplier = positiveOr(cfg.BackoffMultiplier, def.BackoffMultiplier)
	return cfg
}

// Validate rejects configs no limiter can be built from.
func (c Config) Validate() error {
	if c.Strategy != "" && !c.Strategy.Valid() {
		return fmt.Errorf("unknown strategy %q", c.Strategy)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries)
	}
	return nil
}

func positiveOr[T int | float64 | time.Duration](v, def T) T {
	if v > 0 {
		return v
	}
	return def
}
