package config

import "fmt"

// Validate checks that required configuration is present and internally
// consistent.
func (c *Config) Validate() error {
	if err := c.validateRateLimit(); err != nil {
		return err
	}
	if err := c.validateCost(); err != nil {
		return err
	}
	if err := c.validateScraper(); err != nil {
		return err
	}
	return c.validateStore()
}

func (c *Config) validateRateLimit() error {
	if c.RateLimit.ChatGPT < 0 {
		return fmt.Errorf("RATE_LIMIT_CHATGPT must be non-negative, got %d", c.RateLimit.ChatGPT)
	}
	if c.RateLimit.Perplexity < 0 {
		return fmt.Errorf("RATE_LIMIT_PERPLEXITY must be non-negative, got %d", c.RateLimit.Perplexity)
	}
	if c.RateLimit.GoogleAI < 0 {
		return fmt.Errorf("RATE_LIMIT_GOOGLE_AI must be non-negative, got %d", c.RateLimit.GoogleAI)
	}
	return nil
}

func (c *Config) validateCost() error {
	if c.Cost.DailyBudgetUSD < 0 {
		return fmt.Errorf("DAILY_COST_BUDGET_USD must be non-negative, got %f", c.Cost.DailyBudgetUSD)
	}
	return nil
}

func (c *Config) validateScraper() error {
	if c.Scraper.BaseURL == "" {
		return fmt.Errorf("SCRAPER_BASE_URL is required")
	}
	if c.Scraper.Timeout <= 0 {
		return fmt.Errorf("SCRAPER_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateStore() error {
	if c.Store.CoordinationDir == "" {
		return fmt.Errorf("COORDINATION_STORE_DIR is required")
	}
	if c.Store.DocumentDir == "" {
		return fmt.Errorf("DOCUMENT_STORE_DIR is required")
	}
	if c.Store.RelationalPath == "" {
		return fmt.Errorf("RELATIONAL_STORE_PATH is required")
	}
	if c.Store.TimeseriesPath == "" {
		return fmt.Errorf("TIMESERIES_STORE_PATH is required")
	}
	return nil
}
