// Package config loads the visibility pipeline's configuration using Koanf
// v2 with three layered sources: built-in defaults, an optional YAML file,
// and environment variable overrides (highest priority). This mirrors the
// defaults -> file -> env layering the rest of the corpus uses for koanf.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where a config file is searched for, in
// priority order. The first file found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/visibilitypipeline/config.yaml",
	"/etc/visibilitypipeline/config.yml",
}

// ConfigPathEnvVar overrides the config file search with an explicit path.
const ConfigPathEnvVar = "CONFIG_PATH"

// RateLimitConfig holds the per-platform hourly admission caps named in
// spec.md §6: rate_limit_chatgpt, rate_limit_perplexity, rate_limit_google_ai.
type RateLimitConfig struct {
	ChatGPT    int `koanf:"chatgpt"`
	Perplexity int `koanf:"perplexity"`
	GoogleAI   int `koanf:"google_ai"`
}

// CostConfig holds the daily cost ceiling the pipeline driver checks before
// starting any scrape work.
type CostConfig struct {
	DailyBudgetUSD float64 `koanf:"daily_budget_usd"`
}

// ScraperConfig points at the external AI-scraper-as-a-service and bounds
// how long a single scrape call may take.
type ScraperConfig struct {
	BaseURL string        `koanf:"base_url"`
	Timeout time.Duration `koanf:"timeout"`
}

// StoreConfig locates the four storage substrates the pipeline writes to:
// the embedded coordination store (rate limiter/cost tracker/dedup), the
// embedded document store (snapshots/quarantine), and the two DuckDB
// catalogs (relational, time-series).
type StoreConfig struct {
	CoordinationDir string `koanf:"coordination_dir"`
	DocumentDir     string `koanf:"document_dir"`
	RelationalPath  string `koanf:"relational_path"`
	TimeseriesPath  string `koanf:"timeseries_path"`
}

// SchedulerConfig controls how often the supervised flow runners wake.
type SchedulerConfig struct {
	HourlyInterval time.Duration `koanf:"hourly_interval"`
	DailyInterval  time.Duration `koanf:"daily_interval"`
}

// LoggingConfig mirrors logging.Config's fields so it can be loaded with the
// rest of the layered configuration and handed to logging.Init.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// BrandConfig names the distinguished primary brand competitive gaps are
// computed against.
type BrandConfig struct {
	Primary string `koanf:"primary"`
}

// Config is the top-level configuration for the visibility pipeline binary.
type Config struct {
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Cost      CostConfig      `koanf:"cost"`
	Scraper   ScraperConfig   `koanf:"scraper"`
	Store     StoreConfig     `koanf:"store"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Logging   LoggingConfig   `koanf:"logging"`
	Brand     BrandConfig     `koanf:"brand"`
}

// defaultConfig returns a Config with every default value spec.md §6 names,
// applied before the config file and environment layers.
func defaultConfig() *Config {
	return &Config{
		RateLimit: RateLimitConfig{
			ChatGPT:    10,
			Perplexity: 20,
			GoogleAI:   15,
		},
		Cost: CostConfig{
			DailyBudgetUSD: 10.0,
		},
		Scraper: ScraperConfig{
			BaseURL: "http://localhost:3002",
			Timeout: 30 * time.Second,
		},
		Store: StoreConfig{
			CoordinationDir: "/data/visibilitypipeline/coordination",
			DocumentDir:     "/data/visibilitypipeline/documents",
			RelationalPath:  "/data/visibilitypipeline/relational.duckdb",
			TimeseriesPath:  "/data/visibilitypipeline/timeseries.duckdb",
		},
		Scheduler: SchedulerConfig{
			HourlyInterval: time.Hour,
			DailyInterval:  24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Brand: BrandConfig{
			Primary: "Levoit",
		},
	}
}

// Load builds a Config from defaults, an optional YAML file, and environment
// variables, in that precedence order (env wins).
func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file: CONFIG_PATH first, then
// DefaultConfigPaths in order.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps the spec's named environment variables (§6) to
// koanf dotted paths. Unmapped variables are skipped so stray process
// environment does not leak into the config.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	mappings := map[string]string{
		"rate_limit_chatgpt":    "rate_limit.chatgpt",
		"rate_limit_perplexity": "rate_limit.perplexity",
		"rate_limit_google_ai":  "rate_limit.google_ai",

		"daily_cost_budget_usd": "cost.daily_budget_usd",

		"scraper_base_url": "scraper.base_url",
		"scraper_timeout":  "scraper.timeout",

		"coordination_store_dir": "store.coordination_dir",
		"document_store_dir":     "store.document_dir",
		"relational_store_path":  "store.relational_path",
		"timeseries_store_path":  "store.timeseries_path",

		"hourly_interval": "scheduler.hourly_interval",
		"daily_interval":  "scheduler.daily_interval",

		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",

		"primary_brand": "brand.primary",
	}

	if mapped, ok := mappings[key]; ok {
		return mapped
	}
	return ""
}

// GetKoanfInstance returns a fresh Koanf instance for advanced callers
// (tests, custom loaders).
func GetKoanfInstance() *koanf.Koanf {
	return koanf.New(".")
}
