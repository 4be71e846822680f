// Package config loads settings for the dataflow example programs from a
// YAML file, a .env file and DATAFLOW_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/vnykmshr/dataflow/internal/logging"
	"github.com/vnykmshr/dataflow/pkg/common/validation"
	"github.com/vnykmshr/dataflow/pkg/dataflow"
	"github.com/vnykmshr/dataflow/pkg/metrics"
)

// EnvPrefix prefixes every environment variable the loader reads, so
// pipeline.parallelism is set with DATAFLOW_PIPELINE_PARALLELISM.
const EnvPrefix = "DATAFLOW"

// Config is the settings tree shared by the example programs.
type Config struct {
	Logging  logging.Config `mapstructure:"logging"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Throttle ThrottleConfig `mapstructure:"throttle"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Feed     FeedConfig     `mapstructure:"feed"`
}

// PipelineConfig sizes the blocks of a pipeline.
type PipelineConfig struct {
	BoundedCapacity int `mapstructure:"bounded_capacity"`
	Parallelism     int `mapstructure:"parallelism"`
}

// ThrottleConfig limits how fast a block's workers start items.
// A zero Rate disables throttling.
type ThrottleConfig struct {
	Rate  float64 `mapstructure:"rate"`
	Burst int     `mapstructure:"burst"`
}

// RedisConfig points the distributed throttle at a Redis server.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Key      string        `mapstructure:"key"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addr      string `mapstructure:"addr"`
	Namespace string `mapstructure:"namespace"`
}

// FeedConfig drives a scheduled source.
type FeedConfig struct {
	Spec    string `mapstructure:"spec"`
	MaxRuns int    `mapstructure:"max_runs"`
}

func setDefaults(v *viper.Viper) {
	def := logging.DefaultConfig()
	v.SetDefault("logging.level", def.Level)
	v.SetDefault("logging.format", def.Format)
	v.SetDefault("logging.output", def.Output)
	v.SetDefault("logging.no_color", false)
	v.SetDefault("logging.timestamp", def.Timestamp)
	v.SetDefault("logging.caller", false)

	v.SetDefault("pipeline.bounded_capacity", dataflow.Unbounded)
	v.SetDefault("pipeline.parallelism", 1)

	v.SetDefault("throttle.rate", 0.0)
	v.SetDefault("throttle.burst", 1)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key", "dataflow:throttle")
	v.SetDefault("redis.timeout", 100*time.Millisecond)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("metrics.namespace", metrics.DefaultNamespace)

	v.SetDefault("feed.spec", "@every 1s")
	v.SetDefault("feed.max_runs", 0)
}

// Validate checks values the blocks and throttles would reject later.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	if err := validation.ValidateLimit("config", "pipeline.bounded_capacity", c.Pipeline.BoundedCapacity, dataflow.Unbounded); err != nil {
		return err
	}
	if err := validation.ValidateLimit("config", "pipeline.parallelism", c.Pipeline.Parallelism, dataflow.Unbounded); err != nil {
		return err
	}
	if err := validation.ValidateNonNegative("config", "throttle.rate", c.Throttle.Rate); err != nil {
		return err
	}
	if c.Throttle.Rate > 0 {
		if err := validation.ValidatePositive("config", "throttle.burst", c.Throttle.Burst); err != nil {
			return err
		}
	}
	if c.Metrics.Enabled {
		if err := validation.ValidateNotEmpty("config", "metrics.addr", c.Metrics.Addr); err != nil {
			return err
		}
	}
	return nil
}

// BlockOptions converts the pipeline section into block options.
// The caller adds Name and Throttle.
func (c *Config) BlockOptions(log *zerolog.Logger, reg *metrics.Registry) dataflow.BlockOptions {
	return dataflow.BlockOptions{
		BoundedCapacity:        c.Pipeline.BoundedCapacity,
		MaxDegreeOfParallelism: c.Pipeline.Parallelism,
		Logger:                 log,
		Metrics:                reg,
	}
}

// MetricsConfig converts the metrics section for metrics.FromConfig,
// registering with reg.
func (c *Config) MetricsConfig(reg prometheus.Registerer) metrics.Config {
	return metrics.Config{
		Enabled:   c.Metrics.Enabled,
		Registry:  reg,
		Namespace: c.Metrics.Namespace,
	}
}

// Option configures Load.
type Option func(*loader)

type loader struct {
	configFile string
	envFile    string
	searchDirs []string
}

// WithConfigFile loads path instead of searching for config.yml.
func WithConfigFile(path string) Option {
	return func(l *loader) { l.configFile = path }
}

// WithEnvFile loads path instead of searching for .env.
func WithEnvFile(path string) Option {
	return func(l *loader) { l.envFile = path }
}

// WithSearchDirs replaces the directories searched for config.yml and .env.
func WithSearchDirs(dirs ...string) Option {
	return func(l *loader) { l.searchDirs = dirs }
}

// Load resolves configuration in increasing precedence: defaults, the YAML
// file, then the environment. Variables from the .env file are added to the
// environment without overriding ones already set.
func Load(opts ...Option) (*Config, error) {
	l := &loader{searchDirs: []string{".", "./config", ".."}}
	for _, opt := range opts {
		opt(l)
	}

	v := viper.New()
	setDefaults(v)

	if path := l.resolve(l.configFile, "config.yml"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if l.configFile != "" {
		return nil, fmt.Errorf("config: %s: %w", l.configFile, os.ErrNotExist)
	}

	if path := l.resolve(l.envFile, ".env"); path != "" {
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolve returns explicit when it exists, otherwise the first name found
// in the search directories.
func (l *loader) resolve(explicit, name string) string {
	if explicit != "" {
		if exists(explicit) {
			return explicit
		}
		return ""
	}
	for _, dir := range l.searchDirs {
		path := dir + "/" + name
		if exists(path) {
			return path
		}
	}
	return ""
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
