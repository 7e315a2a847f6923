// Package config loads application settings from a YAML file and
// COT_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. COT_BACKFILL_WINDOW.
const EnvPrefix = "COT"

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// maxBatchSize mirrors the upsert batch ceiling.
const maxBatchSize = 500

type Config struct {
	Backfill BackfillConfig `mapstructure:"backfill"`
	Source   SourceConfig   `mapstructure:"source"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Log      LogConfig      `mapstructure:"log"`
	Server   ServerConfig   `mapstructure:"server"`
}

type BackfillConfig struct {
	StartYear     int    `mapstructure:"start_year"`
	EndYear       int    `mapstructure:"end_year"` // 0 means the current UTC year
	Window        int    `mapstructure:"window"`
	BatchSize     int    `mapstructure:"batch_size"`
	DefaultSector string `mapstructure:"default_sector"`
}

type SourceConfig struct {
	URLTemplate string        `mapstructure:"url_template"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Breaker     BreakerConfig `mapstructure:"breaker"`
}

type BreakerConfig struct {
	MaxRequests         uint32        `mapstructure:"max_requests"`
	Interval            time.Duration `mapstructure:"interval"`
	Timeout             time.Duration `mapstructure:"timeout"`
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
}

type StorageConfig struct {
	Driver        string `mapstructure:"driver"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	ClickhouseDSN string `mapstructure:"clickhouse_dsn"`
	Migrate       bool   `mapstructure:"migrate"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Encoding    string `mapstructure:"encoding"`
	Development bool   `mapstructure:"development"`
	Sampling    bool   `mapstructure:"sampling"`
}

type ServerConfig struct {
	HTTPAddr        string `mapstructure:"http_addr"`
	RefreshSchedule string `mapstructure:"refresh_schedule"`
	RefreshOnStart  bool   `mapstructure:"refresh_on_start"`
}

// Load reads path (unless envOnly) and applies defaults and env overrides.
func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("backfill.start_year", 2008)
	v.SetDefault("backfill.end_year", 0)
	v.SetDefault("backfill.window", 156)
	v.SetDefault("backfill.batch_size", maxBatchSize)
	v.SetDefault("backfill.default_sector", "Unknown")

	v.SetDefault("source.url_template", "https://www.cftc.gov/files/dea/history/fut_disagg_txt_%d.zip")
	v.SetDefault("source.timeout", "60s")
	v.SetDefault("source.breaker.max_requests", 1)
	v.SetDefault("source.breaker.interval", "0s")
	v.SetDefault("source.breaker.timeout", "5m")
	v.SetDefault("source.breaker.consecutive_failures", 3)

	v.SetDefault("storage.driver", DriverMemory)
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.clickhouse_dsn", "")
	v.SetDefault("storage.migrate", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", false)
	v.SetDefault("log.sampling", false)

	v.SetDefault("server.http_addr", ":8080")
	// CFTC publishes Friday afternoon ET
	v.SetDefault("server.refresh_schedule", "0 30 22 * * FRI")
	v.SetDefault("server.refresh_on_start", false)

	if !envOnly {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

// Validate checks cross-field constraints. now resolves a zero end year.
func (c Config) Validate(now time.Time) error {
	var errs []error

	b := c.Backfill
	if b.Window < 1 {
		errs = append(errs, fmt.Errorf("backfill.window must be >= 1, got %d", b.Window))
	}
	if b.BatchSize < 1 || b.BatchSize > maxBatchSize {
		errs = append(errs, fmt.Errorf("backfill.batch_size must be in 1..%d, got %d", maxBatchSize, b.BatchSize))
	}
	end := b.EndYear
	if end == 0 {
		end = now.UTC().Year()
	}
	if b.StartYear > end {
		errs = append(errs, fmt.Errorf("backfill.start_year %d after end year %d", b.StartYear, end))
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn required for postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}

	return errors.Join(errs...)
}
