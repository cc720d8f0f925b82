package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	assert.Equal(t, 10, cfg.RateLimit.ChatGPT)
	assert.Equal(t, 20, cfg.RateLimit.Perplexity)
	assert.Equal(t, 15, cfg.RateLimit.GoogleAI)
	assert.Equal(t, 10.0, cfg.Cost.DailyBudgetUSD)
	assert.Equal(t, 30*time.Second, cfg.Scraper.Timeout)
	assert.Equal(t, time.Hour, cfg.Scheduler.HourlyInterval)
	assert.Equal(t, 24*time.Hour, cfg.Scheduler.DailyInterval)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "Levoit", cfg.Brand.Primary)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("RATE_LIMIT_CHATGPT", "5")
	t.Setenv("DAILY_COST_BUDGET_USD", "25.50")
	t.Setenv("SCRAPER_BASE_URL", "http://scraper.internal:3002")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("PRIMARY_BRAND", "Dyson")

	dir := t.TempDir()
	t.Setenv("COORDINATION_STORE_DIR", filepath.Join(dir, "coordination"))
	t.Setenv("DOCUMENT_STORE_DIR", filepath.Join(dir, "documents"))
	t.Setenv("RELATIONAL_STORE_PATH", filepath.Join(dir, "relational.duckdb"))
	t.Setenv("TIMESERIES_STORE_PATH", filepath.Join(dir, "timeseries.duckdb"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.RateLimit.ChatGPT)
	assert.Equal(t, 20, cfg.RateLimit.Perplexity, "unset keys keep their default")
	assert.Equal(t, 25.50, cfg.Cost.DailyBudgetUSD)
	assert.Equal(t, "http://scraper.internal:3002", cfg.Scraper.BaseURL)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "Dyson", cfg.Brand.Primary)
}

func TestLoadReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	yamlContent := "rate_limit:\n  chatgpt: 7\ncost:\n  daily_budget_usd: 42\n"
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o600))

	t.Setenv(ConfigPathEnvVar, configPath)
	t.Setenv("COORDINATION_STORE_DIR", filepath.Join(dir, "coordination"))
	t.Setenv("DOCUMENT_STORE_DIR", filepath.Join(dir, "documents"))
	t.Setenv("RELATIONAL_STORE_PATH", filepath.Join(dir, "relational.duckdb"))
	t.Setenv("TIMESERIES_STORE_PATH", filepath.Join(dir, "timeseries.duckdb"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.RateLimit.ChatGPT)
	assert.Equal(t, 42.0, cfg.Cost.DailyBudgetUSD)
}

func TestEnvTransformFuncSkipsUnmappedKeys(t *testing.T) {
	assert.Equal(t, "", envTransformFunc("SOME_RANDOM_VAR"))
	assert.Equal(t, "rate_limit.chatgpt", envTransformFunc("RATE_LIMIT_CHATGPT"))
	assert.Equal(t, "cost.daily_budget_usd", envTransformFunc("DAILY_COST_BUDGET_USD"))
}

func TestValidateRejectsNegativeRateLimit(t *testing.T) {
	cfg := defaultConfig()
	cfg.RateLimit.ChatGPT = -1
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RATE_LIMIT_CHATGPT")
}

func TestValidateRejectsNegativeBudget(t *testing.T) {
	cfg := defaultConfig()
	cfg.Cost.DailyBudgetUSD = -5
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DAILY_COST_BUDGET_USD")
}

func TestValidateRequiresScraperBaseURL(t *testing.T) {
	cfg := defaultConfig()
	cfg.Scraper.BaseURL = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SCRAPER_BASE_URL")
}

func TestValidateRequiresStorePaths(t *testing.T) {
	cfg := defaultConfig()
	cfg.Store.RelationalPath = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RELATIONAL_STORE_PATH")
}

func TestFindConfigFileDefaultsToEmpty(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	defer func() { require.NoError(t, os.Chdir(wd)) }()
	require.NoError(t, os.Chdir(dir))

	assert.Equal(t, "", findConfigFile())
}
