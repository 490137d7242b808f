// Package risk performs the pre-flight go/no-go assessment for a session.
package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/scraperd/internal/core/domain"
)

// Weights are tunable policy, not calibrated constants. Defaults mirror the
// documented thresholds; deployments may override them from config.
type Weights struct {
	HealthDeficit      float64 `yaml:"health_deficit"`
	ErrorRate          float64 `yaml:"error_rate"`
	OffHours           float64 `yaml:"off_hours"`
	ConcurrentModerate float64 `yaml:"concurrent_moderate"` // >5 sessions
	ConcurrentHeavy    float64 `yaml:"concurrent_heavy"`    // >10 sessions
	SystemLoad         float64 `yaml:"system_load"`
}

// DefaultWeights returns the default risk policy.
func DefaultWeights() Weights {
	return Weights{
		HealthDeficit:      0.4,
		ErrorRate:          0.3,
		OffHours:           0.15,
		ConcurrentModerate: 0.3,
		ConcurrentHeavy:    0.5,
		SystemLoad:         0.25,
	}
}

// HealthSource provides per-account health for the candidate list.
type HealthSource interface {
	Analyze(ctx context.Context, accountID string, history []domain.ScrapingError) domain.AccountHealth
}

// HistorySource provides recent error history.
type HistorySource interface {
	History(accountID string) []domain.ScrapingError
}

// SessionCounter reports how many sessions are currently active.
type SessionCounter interface {
	CountActive(ctx context.Context) (int, error)
}

// LoadSource reports a [0,1] proxy for system load.
type LoadSource interface {
	Utilization() float64
}

// Assessor combines account health, error history, time of day, concurrency
// and system load into a single pre-flight decision.
type Assessor struct {
	weights  Weights
	health   HealthSource
	history  HistorySource
	sessions SessionCounter
	load     LoadSource

	now func() time.Time
}

// NewAssessor creates an assessor.
func NewAssessor(
	weights Weights,
	health HealthSource,
	history HistorySource,
	sessions SessionCounter,
	load LoadSource,
) *Assessor {
	return &Assessor{
		weights:  weights,
		health:   health,
		history:  history,
		sessions: sessions,
		load:     load,
		now:      time.Now,
	}
}

// Assess produces a one-shot SessionRisk for the candidate account list.
// force lets the caller proceed on HIGH/EXTREME with a reduced account cap.
func (a *Assessor) Assess(
	ctx context.Context,
	accounts []domain.Account,
	typ domain.SessionType,
	force bool,
) domain.SessionRisk {
	var (
		score   float64
		factors []string
		recs    []string
	)

	// Mean health deficit over the candidate accounts.
	if len(accounts) > 0 && a.health != nil {
		var deficit float64
		var worst int = 100
		for _, acc := range accounts {
			h := a.health.Analyze(ctx, acc.ID, a.history.History(acc.ID))
			deficit += float64(100-h.Score) / 100
			if h.Score < worst {
				worst = h.Score
			}
		}
		mean := deficit / float64(len(accounts))
		if mean > 0.05 {
			score += mean * a.weights.HealthDeficit
			factors = append(factors,
				fmt.Sprintf("mean account health deficit %.0f%% (worst score %d)", mean*100, worst))
		}
		if worst < 40 {
			recs = append(recs, "exclude low-health accounts before starting")
		}
	}

	// Historical error pressure from the rolling history.
	if a.history != nil {
		recent := 0
		cutoff := a.now().Add(-2 * time.Hour)
		for _, acc := range accounts {
			for _, e := range a.history.History(acc.ID) {
				if e.Timestamp.After(cutoff) {
					recent++
				}
			}
		}
		if len(accounts) > 0 {
			rate := float64(recent) / float64(len(accounts))
			if rate > 0.5 {
				score += minFloat(rate/5, 1) * a.weights.ErrorRate
				factors = append(factors,
					fmt.Sprintf("%.1f recent errors per candidate account", rate))
				recs = append(recs, "wait for error pressure to subside or shrink the session")
			}
		}
	}

	// Time of day: scraping outside quiet-safe hours draws attention.
	hour := a.now().Hour()
	if hour < 6 || hour >= 23 {
		score += a.weights.OffHours
		factors = append(factors, fmt.Sprintf("off-hours start (%02d:00 local)", hour))
		recs = append(recs, "prefer starting sessions between 06:00 and 23:00")
	}

	// Concurrent sessions contend on the shared rate limiter.
	if a.sessions != nil {
		if active, err := a.sessions.CountActive(ctx); err == nil {
			switch {
			case active > 10:
				score += a.weights.ConcurrentHeavy
				factors = append(factors, fmt.Sprintf("%d concurrent sessions", active))
				recs = append(recs, "defer until running sessions drain")
			case active > 5:
				score += a.weights.ConcurrentModerate
				factors = append(factors, fmt.Sprintf("%d concurrent sessions", active))
			}
		}
	}

	// System load proxy: shared rate-limiter utilization.
	if a.load != nil {
		if u := a.load.Utilization(); u > 0.7 {
			score += (u - 0.7) / 0.3 * a.weights.SystemLoad
			factors = append(factors, fmt.Sprintf("rate limiter at %.0f%% of hourly ceiling", u*100))
		}
	}

	if score > 1 {
		score = 1
	}
	level := levelFor(score)

	proceed := true
	limit := len(accounts)
	switch level {
	case domain.RiskHigh:
		// Proceed, but halve the session.
		limit = len(accounts) / 2
		if limit < 1 {
			limit = 1
		}
		recs = append(recs, fmt.Sprintf("reduce session to %d accounts", limit))
	case domain.RiskExtreme:
		if !force {
			proceed = false
			recs = append(recs, "do not start; resolve contributing factors first")
		} else {
			limit = len(accounts) / 4
			if limit < 1 {
				limit = 1
			}
			recs = append(recs, fmt.Sprintf("forced start: capped at %d accounts", limit))
		}
	}

	return domain.SessionRisk{
		Level:                   level,
		Score:                   score,
		Factors:                 factors,
		Recommendations:         recs,
		ShouldProceed:           proceed,
		RecommendedAccountLimit: limit,
	}
}

func levelFor(score float64) domain.RiskLevel {
	switch {
	case score < 0.25:
		return domain.RiskLow
	case score < 0.5:
		return domain.RiskMedium
	case score < 0.75:
		return domain.RiskHigh
	default:
		return domain.RiskExtreme
	}
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
