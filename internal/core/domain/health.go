package domain

import "time"

// HealthAction is the recommended response to an account's health state.
type HealthAction string

const (
	ActionContinue    HealthAction = "CONTINUE"
	ActionPause       HealthAction = "PAUSE"
	ActionInvestigate HealthAction = "INVESTIGATE"
	ActionQuarantine  HealthAction = "QUARANTINE"
)

// RiskFactors are the inputs that pulled an account's score down.
type RiskFactors struct {
	ConsecutiveFailures int        `json:"consecutive_failures"`
	HourlyErrorRate     float64    `json:"hourly_error_rate"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
	SuspiciousActivity  bool       `json:"suspicious_activity"`
	RateLimitHits       int        `json:"rate_limit_hits"`
}

// AccountHealth is the derived reliability state of one account,
// cached with a TTL and recomputed on invalidation.
type AccountHealth struct {
	AccountID            string       `json:"account_id"`
	Score                int          `json:"score"`
	Factors              RiskFactors  `json:"factors"`
	NextErrorProbability float64      `json:"next_error_probability"`
	Recommended          HealthAction `json:"recommended"`
	Confidence           float64      `json:"confidence"`
	ComputedAt           time.Time    `json:"computed_at"`
}
