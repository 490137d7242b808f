// Package ratelimit enforces request ceilings and spend budgets for
// scraping sessions.
//
// This package contains:
//   - Config: recognized tuning options with named presets
//   - Limiter: shared request-rate arbiter and spend tracker
//   - CostAnalysis: "how many accounts can we afford" math
package ratelimit

import (
	"fmt"
	"time"
)

// Config holds every recognized scraping limit option. No other knobs exist.
type Config struct {
	DailyBudgetLimit   float64 `yaml:"daily_budget_limit"`
	MonthlyBudgetLimit float64 `yaml:"monthly_budget_limit"`
	CostPerUnit        float64 `yaml:"cost_per_unit"`

	RequestsPerMinute int           `yaml:"requests_per_minute"`
	RequestsPerHour   int           `yaml:"requests_per_hour"`
	RequestDelay      time.Duration `yaml:"request_delay"`

	MaxAccountsPerSession  int           `yaml:"max_accounts_per_session"`
	MaxAccountsPerDay      int           `yaml:"max_accounts_per_day"`
	MinHoursBetweenScrapes float64       `yaml:"min_hours_between_scrapes"`
	MaxRetryAttempts       int           `yaml:"max_retry_attempts"`
	RetryBackoffBase       time.Duration `yaml:"retry_backoff_base"`

	PrioritizeOwnedAccounts bool `yaml:"prioritize_owned_accounts"`
	SkipRecentlyScraped     bool `yaml:"skip_recently_scraped"`
	UseReducedDataMode      bool `yaml:"use_reduced_data_mode"`
}

// PresetTest returns limits suitable for integration tests: tiny budget,
// no artificial delays.
func PresetTest() Config {
	return Config{
		DailyBudgetLimit:        0.10,
		MonthlyBudgetLimit:      1.00,
		CostPerUnit:             0.001,
		RequestsPerMinute:       60,
		RequestsPerHour:         3600,
		RequestDelay:            10 * time.Millisecond,
		MaxAccountsPerSession:   10,
		MaxAccountsPerDay:       50,
		MinHoursBetweenScrapes:  0,
		MaxRetryAttempts:        2,
		RetryBackoffBase:        10 * time.Millisecond,
		SkipRecentlyScraped:     false,
		PrioritizeOwnedAccounts: false,
		UseReducedDataMode:      true,
	}
}

// PresetSmall returns limits for a small deployment (tens of accounts).
func PresetSmall() Config {
	return Config{
		DailyBudgetLimit:        1.00,
		MonthlyBudgetLimit:      25.00,
		CostPerUnit:             0.002,
		RequestsPerMinute:       10,
		RequestsPerHour:         600,
		RequestDelay:            2 * time.Second,
		MaxAccountsPerSession:   50,
		MaxAccountsPerDay:       200,
		MinHoursBetweenScrapes:  12,
		MaxRetryAttempts:        3,
		RetryBackoffBase:        2 * time.Second,
		SkipRecentlyScraped:     true,
		PrioritizeOwnedAccounts: true,
		UseReducedDataMode:      true,
	}
}

// PresetProduction returns the default production limits.
func PresetProduction() Config {
	return Config{
		DailyBudgetLimit:        10.00,
		MonthlyBudgetLimit:      250.00,
		CostPerUnit:             0.002,
		RequestsPerMinute:       30,
		RequestsPerHour:         1800,
		RequestDelay:            1 * time.Second,
		MaxAccountsPerSession:   500,
		MaxAccountsPerDay:       2000,
		MinHoursBetweenScrapes:  20,
		MaxRetryAttempts:        3,
		RetryBackoffBase:        2 * time.Second,
		SkipRecentlyScraped:     true,
		PrioritizeOwnedAccounts: true,
		UseReducedDataMode:      false,
	}
}

// PresetEnterprise returns limits for large fleets with a bigger budget.
func PresetEnterprise() Config {
	return Config{
		DailyBudgetLimit:        100.00,
		MonthlyBudgetLimit:      2500.00,
		CostPerUnit:             0.002,
		RequestsPerMinute:       60,
		RequestsPerHour:         3600,
		RequestDelay:            500 * time.Millisecond,
		MaxAccountsPerSession:   5000,
		MaxAccountsPerDay:       20000,
		MinHoursBetweenScrapes:  12,
		MaxRetryAttempts:        4,
		RetryBackoffBase:        1 * time.Second,
		SkipRecentlyScraped:     true,
		PrioritizeOwnedAccounts: true,
		UseReducedDataMode:      false,
	}
}

// Preset resolves a preset by name. Unknown names fall back to production.
func Preset(name string) Config {
	switch name {
	case "test":
		return PresetTest()
	case "small":
		return PresetSmall()
	case "enterprise":
		return PresetEnterprise()
	default:
		return PresetProduction()
	}
}

// Validate rejects configurations that can never work.
func (c Config) Validate() error {
	if c.DailyBudgetLimit <= 0 {
		return fmt.Errorf("daily budget limit must be positive, got %v", c.DailyBudgetLimit)
	}
	if c.MonthlyBudgetLimit <= 0 {
		return fmt.Errorf("monthly budget limit must be positive, got %v", c.MonthlyBudgetLimit)
	}
	if c.CostPerUnit <= 0 {
		return fmt.Errorf("cost per unit must be positive, got %v", c.CostPerUnit)
	}
	if c.RequestsPerMinute <= 0 || c.RequestsPerHour <= 0 {
		return fmt.Errorf("request rates must be positive")
	}
	if c.RequestsPerMinute*60 > c.RequestsPerHour {
		return fmt.Errorf(
			"requests_per_minute %d * 60 exceeds requests_per_hour %d",
			c.RequestsPerMinute, c.RequestsPerHour,
		)
	}
	return nil
}

// Warnings flags configurations that validate but are likely to cause
// rate limiting or budget overruns.
func (c Config) Warnings() []string {
	var warnings []string

	if c.RequestDelay < 500*time.Millisecond && c.RequestsPerMinute > 30 {
		warnings = append(warnings,
			"request delay under 500ms with a high per-minute rate is likely to trip API rate limiting")
	}
	if c.DailyBudgetLimit*31 > c.MonthlyBudgetLimit {
		warnings = append(warnings,
			"daily budget * 31 exceeds the monthly budget; month-end sessions will be clamped")
	}
	maxDailySpend := float64(c.MaxAccountsPerDay) * c.CostPerUnit
	if maxDailySpend > c.DailyBudgetLimit {
		warnings = append(warnings, fmt.Sprintf(
			"max_accounts_per_day %d can spend %.2f, above the daily budget %.2f",
			c.MaxAccountsPerDay, maxDailySpend, c.DailyBudgetLimit))
	}
	return warnings
}
