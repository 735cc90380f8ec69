// Package config loads crmsync settings from a YAML file and CRMSYNC_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/mkoziy/contratos/crmsync/internal/database"
	"github.com/mkoziy/contratos/crmsync/internal/logger"
	"github.com/mkoziy/contratos/crmsync/internal/overlay"
	"github.com/mkoziy/contratos/crmsync/internal/ratelimit"
	"github.com/mkoziy/contratos/crmsync/internal/sources/crm"
)

// EnvPrefix namespaces environment overrides, e.g. CRMSYNC_CRM_TOKEN.
const EnvPrefix = "CRMSYNC"

// SyncConfig tunes the orchestrator.
type SyncConfig struct {
	BatchSize           int           `mapstructure:"batch_size" validate:"gte=0"`
	FetchTimeout        time.Duration `mapstructure:"fetch_timeout" validate:"gte=0"`
	RunTimeout          time.Duration `mapstructure:"run_timeout" validate:"gte=0"`
	AutoSuppressSameDay bool          `mapstructure:"auto_suppress_same_day"`
	DefaultWindow       string        `mapstructure:"default_window" validate:"oneof=currentMonthToDate today"`
	Timezone            string        `mapstructure:"timezone" validate:"required"`
}

// OverlayConfig selects the soft-delete backend.
type OverlayConfig struct {
	Backend  string `mapstructure:"backend" validate:"oneof=memory database redis"`
	RedisKey string `mapstructure:"redis_key"`
}

// RedisConfig enables the redis overlay and the cross-process sync lock.
type RedisConfig struct {
	Addr       string        `mapstructure:"addr" validate:"omitempty,hostname_port"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db" validate:"gte=0"`
	LockPrefix string        `mapstructure:"lock_prefix"`
	LockTTL    time.Duration `mapstructure:"lock_ttl"`
}

// Enabled reports whether a redis server is configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// HTTPConfig configures the serve command.
type HTTPConfig struct {
	Addr string `mapstructure:"addr" validate:"required"`
	Mode string `mapstructure:"mode" validate:"oneof=debug release test"`
}

// NotifyConfig configures contract dispatch.
type NotifyConfig struct {
	InternalCopyTo string `mapstructure:"internal_copy_to" validate:"omitempty,email"`
}

// Config is the full application configuration.
type Config struct {
	Database      database.Config  `mapstructure:"database"`
	CRM           crm.Config       `mapstructure:"crm"`
	RateLimit     ratelimit.Config `mapstructure:"rate_limit"`
	RateLimitFile string           `mapstructure:"rate_limit_file"`
	Sync          SyncConfig       `mapstructure:"sync"`
	Overlay       OverlayConfig    `mapstructure:"overlay"`
	Redis         RedisConfig      `mapstructure:"redis"`
	Log           logger.Config    `mapstructure:"log"`
	HTTP          HTTPConfig       `mapstructure:"http"`
	Notify        NotifyConfig     `mapstructure:"notify"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.dsn", "file:crmsync.db?cache=shared")
	v.SetDefault("database.debug", false)

	v.SetDefault("crm.base_url", "")
	v.SetDefault("crm.token", "")
	v.SetDefault("crm.timeout", 30*time.Second)

	rl := ratelimit.DefaultConfig()
	v.SetDefault("rate_limit.strategy", string(rl.Strategy))
	v.SetDefault("rate_limit.requests_per_second", rl.RequestsPerSec)
	v.SetDefault("rate_limit.burst", rl.Burst)
	v.SetDefault("rate_limit.fixed_delay", rl.FixedDelay)
	v.SetDefault("rate_limit.max_retries", rl.MaxRetries)
	v.SetDefault("rate_limit.initial_backoff", rl.InitialBackoff)
	v.SetDefault("rate_limit.max_backoff", rl.MaxBackoff)
	v.SetDefault("rate_limit.backoff_multiplier", rl.BackoffMultiplier)
	v.SetDefault("rate_limit_file", "")

	v.SetDefault("sync.batch_size", 100)
	v.SetDefault("sync.fetch_timeout", 2*time.Minute)
	v.SetDefault("sync.run_timeout", 30*time.Minute)
	v.SetDefault("sync.auto_suppress_same_day", true)
	v.SetDefault("sync.default_window", "currentMonthToDate")
	v.SetDefault("sync.timezone", "America/Santiago")

	v.SetDefault("overlay.backend", overlay.BackendDatabase)
	v.SetDefault("overlay.redis_key", overlay.DefaultRedisKey)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_prefix", "crmsync:lock:")
	v.SetDefault("redis.lock_ttl", 2*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("log.file.path", "")
	v.SetDefault("log.file.max_size_mb", 50)
	v.SetDefault("log.file.max_backups", 5)
	v.SetDefault("log.file.max_age_days", 30)
	v.SetDefault("log.file.compress", false)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.mode", "release")

	v.SetDefault("notify.internal_copy_to", "")
}

// Load reads path (or crmsync.yaml from the working directory or
// /etc/crmsync when path is empty), applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("crmsync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/crmsync")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.RateLimitFile != "" {
		sources, err := ratelimit.LoadFile(cfg.RateLimitFile)
		if err != nil {
			return nil, err
		}
		if rl, ok := sources.Get("crm"); ok {
			cfg.RateLimit = rl
		}
	}
	cfg.RateLimit = ratelimit.WithDefaults(cfg.RateLimit)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New()

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("invalid config: rate_limit: %w", err)
	}
	if c.Overlay.Backend == overlay.BackendRedis && !c.Redis.Enabled() {
		return errors.New("invalid config: overlay.backend=redis requires redis.addr")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid config: sync.timezone: %w", err)
	}
	return nil
}

// Location resolves the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Sync.Timezone)
}

// RequireCRM reports whether the CRM endpoint is configured. Commands
// that never contact the CRM (migrate, status) skip this check.
func (c *Config) RequireCRM() error {
	if c.CRM.BaseURL == "" {
		return errors.New("crm.base_url is required")
	}
	return nil
}
