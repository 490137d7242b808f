package config

import (
	"github.com/vietddude/scraperd/internal/infra/apiclient"
	redisclient "github.com/vietddude/scraperd/internal/infra/redis"
	"github.com/vietddude/scraperd/internal/infra/storage/postgres"
	"github.com/vietddude/scraperd/internal/scraping/ratelimit"
	"github.com/vietddude/scraperd/internal/scraping/risk"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Logging  LoggingConfig      `yaml:"logging"`
	Database postgres.Config    `yaml:"database"`
	Redis    redisclient.Config `yaml:"redis"`
	API      apiclient.Config   `yaml:"api"`
	Scraping ScrapingConfig     `yaml:"scraping"`
	Risk     *risk.Weights      `yaml:"risk,omitempty"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ScrapingConfig selects a limits preset and overrides individual fields.
// Zero-valued numeric overrides keep the preset's value; the boolean flags
// are pointers so "explicitly false" is distinguishable from unset.
type ScrapingConfig struct {
	Preset string `yaml:"preset"` // test, small, production, enterprise

	DailyBudgetLimit   float64 `yaml:"daily_budget_limit"`
	MonthlyBudgetLimit float64 `yaml:"monthly_budget_limit"`
	CostPerUnit        float64 `yaml:"cost_per_unit"`

	RequestsPerMinute int    `yaml:"requests_per_minute"`
	RequestsPerHour   int    `yaml:"requests_per_hour"`
	RequestDelay      string `yaml:"request_delay"`

	MaxAccountsPerSession  int     `yaml:"max_accounts_per_session"`
	MaxAccountsPerDay      int     `yaml:"max_accounts_per_day"`
	MinHoursBetweenScrapes float64 `yaml:"min_hours_between_scrapes"`
	MaxRetryAttempts       int     `yaml:"max_retry_attempts"`
	RetryBackoffBase       string  `yaml:"retry_backoff_base"`

	PrioritizeOwnedAccounts *bool `yaml:"prioritize_owned_accounts"`
	SkipRecentlyScraped     *bool `yaml:"skip_recently_scraped"`
	UseReducedDataMode      *bool `yaml:"use_reduced_data_mode"`
}

// Limits resolves the scraping config into a full ratelimit.Config:
// preset first, explicit overrides on top.
func (c ScrapingConfig) Limits() (ratelimit.Config, error) {
	cfg := ratelimit.Preset(c.Preset)

	if c.DailyBudgetLimit > 0 {
		cfg.DailyBudgetLimit = c.DailyBudgetLimit
	}
	if c.MonthlyBudgetLimit > 0 {
		cfg.MonthlyBudgetLimit = c.MonthlyBudgetLimit
	}
	if c.CostPerUnit > 0 {
		cfg.CostPerUnit = c.CostPerUnit
	}
	if c.RequestsPerMinute > 0 {
		cfg.RequestsPerMinute = c.RequestsPerMinute
	}
	if c.RequestsPerHour > 0 {
		cfg.RequestsPerHour = c.RequestsPerHour
	}
	if c.MaxAccountsPerSession > 0 {
		cfg.MaxAccountsPerSession = c.MaxAccountsPerSession
	}
	if c.MaxAccountsPerDay > 0 {
		cfg.MaxAccountsPerDay = c.MaxAccountsPerDay
	}
	if c.MinHoursBetweenScrapes > 0 {
		cfg.MinHoursBetweenScrapes = c.MinHoursBetweenScrapes
	}
	if c.MaxRetryAttempts > 0 {
		cfg.MaxRetryAttempts = c.MaxRetryAttempts
	}
	if d, err := parseDuration(c.RequestDelay); err != nil {
		return cfg, err
	} else if d > 0 {
		cfg.RequestDelay = d
	}
	if d, err := parseDuration(c.RetryBackoffBase); err != nil {
		return cfg, err
	} else if d > 0 {
		cfg.RetryBackoffBase = d
	}
	if c.PrioritizeOwnedAccounts != nil {
		cfg.PrioritizeOwnedAccounts = *c.PrioritizeOwnedAccounts
	}
	if c.SkipRecentlyScraped != nil {
		cfg.SkipRecentlyScraped = *c.SkipRecentlyScraped
	}
	if c.UseReducedDataMode != nil {
		cfg.UseReducedDataMode = *c.UseReducedDataMode
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
