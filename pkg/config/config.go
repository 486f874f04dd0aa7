package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	gap "github.com/muesli/go-app-paths"
	"gopkg.in/yaml.v3"

	"github.com/pario-ai/larder/pkg/expiry"
)

const appName = "larder"

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "LARDER_"

// Config holds all larder configuration.
type Config struct {
	APIURLPrefix string         `yaml:"api_url_prefix" env:"API_URL_PREFIX"`
	Listen       string         `yaml:"listen" env:"LISTEN"`
	DBPath       string         `yaml:"db_path" env:"DB_PATH"`
	Cache        CacheConfig    `yaml:"cache" envPrefix:"CACHE_"`
	Janitor      JanitorConfig  `yaml:"janitor" envPrefix:"JANITOR_"`
	Upstream     UpstreamConfig `yaml:"upstream" envPrefix:"UPSTREAM_"`
	Log          LogConfig      `yaml:"log" envPrefix:"LOG_"`
}

// CacheConfig controls the response cache.
// Backend is "sqlite" (default) or "memory".
type CacheConfig struct {
	Name     string        `yaml:"name" env:"NAME"`
	Backend  string        `yaml:"backend" env:"BACKEND"`
	TTL      time.Duration `yaml:"ttl" env:"TTL"`
	TTLMs    int64         `yaml:"ttl_ms" env:"TTL_MS"`
	Compress bool          `yaml:"compress" env:"COMPRESS"`
}

// JanitorConfig controls background eviction.
type JanitorConfig struct {
	Interval    time.Duration `yaml:"interval" env:"INTERVAL"`
	Concurrency int           `yaml:"concurrency" env:"CONCURRENCY"`
}

// UpstreamConfig controls requests to the catalog API.
type UpstreamConfig struct {
	Timeout      time.Duration `yaml:"timeout" env:"TIMEOUT"`
	CacheControl string        `yaml:"cache_control" env:"CACHE_CONTROL"`
	RateLimit    float64       `yaml:"rate_limit" env:"RATE_LIMIT"`
	Burst        int           `yaml:"burst" env:"BURST"`
	UserAgent    string        `yaml:"user_agent" env:"USER_AGENT"`
}

// LogConfig controls logging. Format is "console" or "json".
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// Cache backends.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		APIURLPrefix: "https://dummyjson.com/recipes",
		Listen:       ":8080",
		DBPath:       defaultDBPath(),
		Cache: CacheConfig{
			Name:     "recipes-cache",
			Backend:  BackendSQLite,
			TTL:      expiry.DefaultTTL,
			Compress: true,
		},
		Janitor: JanitorConfig{
			Interval:    time.Hour,
			Concurrency: 4,
		},
		Upstream: UpstreamConfig{
			Timeout:      10 * time.Second,
			CacheControl: "max-age=3600, stale-while-revalidate=86400",
			Burst:        1,
			UserAgent:    appName,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

func defaultDBPath() string {
	path, err := gap.NewScope(gap.User, appName).DataPath(appName + ".db")
	if err != nil {
		return appName + ".db"
	}
	return path
}

// DefaultPath returns the first existing config file in the user's config
// directories, or "" when there is none.
func DefaultPath() string {
	path, err := gap.NewScope(gap.User, appName).LookupConfig(appName + ".yaml")
	if err != nil || len(path) == 0 {
		return ""
	}
	return path[0]
}

// Load reads a YAML config file, expands environment variables in it and
// applies LARDER_* overrides. An empty path loads defaults plus overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	var errs []error
	if c.APIURLPrefix == "" {
		errs = append(errs, errors.New("api_url_prefix is required"))
	}
	switch c.Cache.Backend {
	case BackendSQLite:
		if c.DBPath == "" {
			errs = append(errs, errors.New("db_path is required for the sqlite backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown cache backend %q", c.Cache.Backend))
	}
	if c.Cache.Name == "" {
		errs = append(errs, errors.New("cache.name is required"))
	}
	if c.Cache.TTL < 0 || c.Cache.TTLMs < 0 {
		errs = append(errs, errors.New("cache ttl must not be negative"))
	}
	if c.Janitor.Interval < 0 {
		errs = append(errs, errors.New("janitor.interval must not be negative"))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// TTL returns the effective cache TTL. ttl_ms wins over ttl.
func (c *Config) TTL() time.Duration {
	if c.Cache.TTLMs > 0 {
		return time.Duration(c.Cache.TTLMs) * time.Millisecond
	}
	if c.Cache.TTL > 0 {
		return c.Cache.TTL
	}
	return expiry.DefaultTTL
}
