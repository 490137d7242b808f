package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AccountsScraped tracks per-session-type account outcomes
	AccountsScraped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraperd_accounts_scraped_total",
			Help: "Total number of accounts processed, by session type and outcome",
		},
		[]string{"session_type", "outcome"},
	)

	// ScrapeErrors tracks classified errors by type and severity
	ScrapeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraperd_errors_total",
			Help: "Total number of classified scraping errors",
		},
		[]string{"error_type", "severity"},
	)

	// RecoveryDecisions tracks which strategy the selector picked
	RecoveryDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraperd_recovery_decisions_total",
			Help: "Total number of recovery strategy decisions",
		},
		[]string{"strategy"},
	)

	// PatternsActive tracks currently registered error patterns by impact
	PatternsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scraperd_error_patterns_active",
			Help: "Number of currently registered error patterns",
		},
		[]string{"impact"},
	)

	// SessionsActive tracks running or paused sessions
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scraperd_sessions_active",
			Help: "Number of sessions currently running or paused",
		},
	)

	// SessionTransitions tracks state machine transitions
	SessionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraperd_session_transitions_total",
			Help: "Total number of session status transitions",
		},
		[]string{"from", "to"},
	)

	// BudgetUtilization tracks daily spend as a percentage of the budget
	BudgetUtilization = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scraperd_budget_utilization_percent",
			Help: "Estimated daily spend as a percentage of the daily budget",
		},
	)

	// RequestUnitsSpent tracks total request units consumed
	RequestUnitsSpent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scraperd_request_units_total",
			Help: "Total request units consumed against the metrics API",
		},
	)

	// FetchLatency tracks metrics-API call latency
	FetchLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraperd_fetch_latency_seconds",
			Help:    "Metrics API fetch latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)
