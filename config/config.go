// Package config loads the storefront traffic-control configuration from
// defaults, an optional YAML file, and MEGATIENDA_-prefixed environment
// variables, in increasing order of precedence. String values may reference
// secrets as ${VAR}, which must be present in the environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/nimble-gus/megatienda-core/ratelimit"
)

// Config is the full configuration of the traffic-control layer.
type Config struct {
	// Env is the deployment environment: "production", "staging" or
	// "development".
	Env string `mapstructure:"env"`

	LogLevel string `mapstructure:"log_level"`

	HTTP      HTTPConfig      `mapstructure:"http"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Timeouts  TimeoutConfig   `mapstructure:"timeouts"`
	Cache     CacheConfig     `mapstructure:"cache"`
}

// HTTPConfig configures the gateway listener.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// RedisConfig configures the shared keyed store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// RateLimitConfig configures the limiter.
type RateLimitConfig struct {
	// FallbackCategory is used when a handler names an unknown category.
	FallbackCategory string `mapstructure:"fallback_category"`

	// Categories overrides thresholds per traffic category. Categories not
	// listed keep the built-in defaults for the environment.
	Categories map[string]ratelimit.Limits `mapstructure:"categories"`
}

// BreakerConfig configures the circuit breaker defaults.
type BreakerConfig struct {
	FailureRatio     float64       `mapstructure:"failure_ratio"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout"`
	MinRequests      int64         `mapstructure:"min_requests"`
	MonitoringPeriod time.Duration `mapstructure:"monitoring_period"`
}

// QueueConfig configures the query queue.
type QueueConfig struct {
	MaxConcurrent    int           `mapstructure:"max_concurrent"`
	DispatchInterval time.Duration `mapstructure:"dispatch_interval"`
}

// TimeoutConfig holds per-category operation deadlines.
type TimeoutConfig struct {
	Query    time.Duration `mapstructure:"query"`
	Tx       time.Duration `mapstructure:"tx"`
	Cache    time.Duration `mapstructure:"cache"`
	External time.Duration `mapstructure:"external"`
}

// CacheConfig configures the cache manager.
type CacheConfig struct {
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
}

// Load reads configuration. path names an optional YAML file; a missing file
// is not an error, only an unreadable or malformed one.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "megatienda")
	v.SetDefault("ratelimit.fallback_category", ratelimit.CategoryPublic)
	v.SetDefault("breaker.failure_ratio", 0.05)
	v.SetDefault("breaker.open_timeout", time.Minute)
	v.SetDefault("breaker.min_requests", 3)
	v.SetDefault("breaker.monitoring_period", 10*time.Minute)
	v.SetDefault("queue.max_concurrent", 2)
	v.SetDefault("queue.dispatch_interval", 25*time.Millisecond)
	v.SetDefault("timeouts.query", 10*time.Second)
	v.SetDefault("timeouts.tx", 30*time.Second)
	v.SetDefault("timeouts.cache", 3*time.Second)
	v.SetDefault("timeouts.external", 15*time.Second)
	v.SetDefault("cache.default_ttl", 5*time.Minute)

	v.SetEnvPrefix("MEGATIENDA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.expandSecrets(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// Unlisted categories keep the per-environment defaults.
	defaults := ratelimit.DefaultCategories(cfg.Env)
	if cfg.RateLimit.Categories == nil {
		cfg.RateLimit.Categories = defaults
	} else {
		for name, limits := range defaults {
			if _, ok := cfg.RateLimit.Categories[name]; !ok {
				cfg.RateLimit.Categories[name] = limits
			}
		}
	}

	return &cfg, nil
}

// expandSecrets resolves ${VAR} references in string settings that commonly
// carry credentials.
func (c *Config) expandSecrets() error {
	for _, field := range []*string{&c.Redis.Addr, &c.Redis.Password} {
		expanded, err := expandEnvStrict(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}
	return nil
}

func (c *Config) validate() error {
	switch c.Env {
	case "production", "staging", "development":
	default:
		return fmt.Errorf("unknown env %q", c.Env)
	}
	if c.Breaker.FailureRatio < 0 || c.Breaker.FailureRatio > 1 {
		return fmt.Errorf("breaker.failure_ratio %v out of range [0,1]", c.Breaker.FailureRatio)
	}
	if c.Queue.MaxConcurrent < 1 {
		return fmt.Errorf("queue.max_concurrent %d must be at least 1", c.Queue.MaxConcurrent)
	}
	for name, d := range map[string]time.Duration{
		"timeouts.query":    c.Timeouts.Query,
		"timeouts.tx":       c.Timeouts.Tx,
		"timeouts.cache":    c.Timeouts.Cache,
		"timeouts.external": c.Timeouts.External,
	} {
		if d <= 0 {
			return fmt.Errorf("%s %v must be positive", name, d)
		}
	}
	for name, limits := range c.RateLimit.Categories {
		if limits.PerMinute <= 0 || limits.PerHour <= 0 || limits.Burst <= 0 {
			return fmt.Errorf("ratelimit category %q has non-positive thresholds", name)
		}
	}
	return nil
}
