package ratelimit

import (
	"fmt"
	"math"
)

// CostAnalysis answers "how many accounts can we afford right now".
type CostAnalysis struct {
	AccountsWithinBudget    int      `json:"accounts_within_budget"`
	EstimatedDailyCost      float64  `json:"estimated_daily_cost"`
	EstimatedMonthlyCost    float64  `json:"estimated_monthly_cost"`
	BudgetUtilization       float64  `json:"budget_utilization"`
	RecommendedAccountLimit int      `json:"recommended_account_limit"`
	SavingsOpportunities    []string `json:"savings_opportunities,omitempty"`
}

// unitsPerAccount is the request-unit price of one profile fetch.
// Reduced-data mode costs a single unit; the full response costs three.
func (c Config) unitsPerAccount() int {
	if c.UseReducedDataMode {
		return 1
	}
	return 3
}

// CostPerAccount returns the estimated monetary cost of scraping one account.
func (c Config) CostPerAccount() float64 {
	return c.CostPerUnit * float64(c.unitsPerAccount())
}

// AnalyzeCosts projects spend for scraping totalAccounts and clamps the
// affordable count to the remaining daily budget. Pure.
func (l *Limiter) AnalyzeCosts(totalAccounts int) CostAnalysis {
	l.mu.RLock()
	cfg := l.cfg
	spentToday := l.spentToday
	spentMonth := l.spentMonth
	l.mu.RUnlock()

	perAccount := cfg.CostPerAccount()

	remainingDaily := cfg.DailyBudgetLimit - spentToday
	if remainingDaily < 0 {
		remainingDaily = 0
	}
	remainingMonthly := cfg.MonthlyBudgetLimit - spentMonth
	if remainingMonthly < 0 {
		remainingMonthly = 0
	}

	affordable := totalAccounts
	if perAccount > 0 {
		// Floor with a small epsilon so 0.01/0.002 lands on 5, not 4.
		byDaily := int(math.Floor(remainingDaily/perAccount + 1e-9))
		byMonthly := int(math.Floor(remainingMonthly/perAccount + 1e-9))
		if byDaily < affordable {
			affordable = byDaily
		}
		if byMonthly < affordable {
			affordable = byMonthly
		}
	}
	if cfg.MaxAccountsPerSession > 0 && affordable > cfg.MaxAccountsPerSession {
		affordable = cfg.MaxAccountsPerSession
	}

	dailyCost := float64(affordable) * perAccount
	monthlyCost := dailyCost * 30

	utilization := 0.0
	if cfg.DailyBudgetLimit > 0 {
		utilization = (spentToday + dailyCost) / cfg.DailyBudgetLimit * 100
	}

	recommended := affordable
	if perAccount > 0 {
		// Keep headroom: aim for at most 80% of the daily budget.
		headroom := int(math.Floor(cfg.DailyBudgetLimit * 0.8 / perAccount))
		if headroom < recommended {
			recommended = headroom
		}
	}
	if recommended < 0 {
		recommended = 0
	}

	var savings []string
	if !cfg.UseReducedDataMode {
		savings = append(savings, fmt.Sprintf(
			"reduced-data mode would cut per-account cost from %.4f to %.4f",
			perAccount, cfg.CostPerUnit))
	}
	if !cfg.SkipRecentlyScraped {
		savings = append(savings, "enabling skip-recently-scraped avoids paying twice for fresh data")
	}
	if monthlyCost > cfg.MonthlyBudgetLimit {
		savings = append(savings, fmt.Sprintf(
			"projected monthly spend %.2f exceeds the monthly budget %.2f; reduce session size or frequency",
			monthlyCost, cfg.MonthlyBudgetLimit))
	}

	return CostAnalysis{
		AccountsWithinBudget:    affordable,
		EstimatedDailyCost:      dailyCost,
		EstimatedMonthlyCost:    monthlyCost,
		BudgetUtilization:       utilization,
		RecommendedAccountLimit: recommended,
		SavingsOpportunities:    savings,
	}
}
