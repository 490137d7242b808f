// Package health scores account reliability and predicts the probability
// of the next request failing.
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/scraperd/internal/core/domain"
)

const cacheTTL = 30 * time.Minute

// Quarantiner persists quarantine recommendations so concurrent processes
// skip the account. Backed by redis in production, memory in tests.
type Quarantiner interface {
	Quarantine(ctx context.Context, accountID string, reason string) error
	IsQuarantined(ctx context.Context, accountID string) (bool, error)
}

type cacheEntry struct {
	value      domain.AccountHealth
	computedAt time.Time
}

// Monitor computes per-account health with an explicit TTL cache.
type Monitor struct {
	mu          sync.RWMutex
	cache       map[string]cacheEntry
	lastSuccess map[string]time.Time
	quarantine  Quarantiner
	log         *slog.Logger

	now func() time.Time
}

// NewMonitor creates a health monitor. quarantine may be nil.
func NewMonitor(quarantine Quarantiner, log *slog.Logger) *Monitor {
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{
		cache:       make(map[string]cacheEntry),
		lastSuccess: make(map[string]time.Time),
		quarantine:  quarantine,
		log:         log,
		now:         time.Now,
	}
}

// Analyze returns the account's health, recomputing only when the cached
// entry is older than the TTL. history is most recent first.
func (m *Monitor) Analyze(
	ctx context.Context,
	accountID string,
	history []domain.ScrapingError,
) domain.AccountHealth {
	m.mu.RLock()
	entry, ok := m.cache[accountID]
	m.mu.RUnlock()

	now := m.now()
	if ok && now.Sub(entry.computedAt) < cacheTTL {
		return entry.value
	}

	m.mu.RLock()
	var lastSuccess *time.Time
	if ts, ok := m.lastSuccess[accountID]; ok {
		lastSuccess = &ts
	}
	m.mu.RUnlock()

	h := score(accountID, history, lastSuccess, now)

	m.mu.Lock()
	m.cache[accountID] = cacheEntry{value: h, computedAt: now}
	m.mu.Unlock()

	if h.Recommended == domain.ActionQuarantine && m.quarantine != nil {
		if err := m.quarantine.Quarantine(ctx, accountID, "health score below quarantine threshold"); err != nil {
			m.log.Warn("failed to persist quarantine", "account", accountID, "error", err)
		}
		m.log.Warn("account quarantined",
			"account", accountID, "score", h.Score, "probability", h.NextErrorProbability)
	}
	return h
}

// Invalidate drops the cached entry so the next Analyze recomputes.
// Called after every new error for the account.
func (m *Monitor) Invalidate(accountID string) {
	m.mu.Lock()
	delete(m.cache, accountID)
	m.mu.Unlock()
}

// RecordSuccess marks a successful scrape and invalidates the cached
// score so the next analysis sees the improvement.
func (m *Monitor) RecordSuccess(accountID string) {
	m.mu.Lock()
	m.lastSuccess[accountID] = m.now()
	delete(m.cache, accountID)
	m.mu.Unlock()
}

func score(
	accountID string,
	history []domain.ScrapingError,
	lastSuccess *time.Time,
	now time.Time,
) domain.AccountHealth {
	dayAgo := now.Add(-24 * time.Hour)

	var (
		consecutive   int
		streakBroken  bool
		errorsLastDay int
		authLastDay   int
		rateLastDay   int
	)
	for _, e := range history {
		if !streakBroken {
			if e.Severity == domain.SeverityHigh || e.Severity == domain.SeverityCritical {
				consecutive++
			} else {
				streakBroken = true
			}
		}
		if e.Timestamp.After(dayAgo) {
			errorsLastDay++
			switch e.Type {
			case domain.ErrorAuthentication:
				authLastDay++
			case domain.ErrorRateLimit:
				rateLastDay++
			}
		}
	}

	hourlyRate := float64(errorsLastDay) / 24
	suspicious := authLastDay > 3 || rateLastDay > 10

	healthScore := 100.0
	healthScore -= 5 * float64(consecutive)
	healthScore -= 10 * hourlyRate
	if suspicious {
		healthScore -= 20
	}
	healthScore -= 2 * float64(rateLastDay)

	// Days since last success, only when a success has been observed.
	if lastSuccess != nil {
		healthScore -= now.Sub(*lastSuccess).Hours() / 24
	}

	if healthScore < 0 {
		healthScore = 0
	}
	if healthScore > 100 {
		healthScore = 100
	}

	probability := minFloat(float64(consecutive)*0.1, 0.5) +
		minFloat(hourlyRate*0.05, 0.3) +
		minFloat((100-healthScore)*0.002, 0.2)
	if probability > 0.95 {
		probability = 0.95
	}

	var action domain.HealthAction
	switch {
	case healthScore < 20 || probability > 0.8:
		action = domain.ActionQuarantine
	case healthScore < 40 || probability > 0.6:
		action = domain.ActionInvestigate
	case healthScore < 70 || probability > 0.4:
		action = domain.ActionPause
	default:
		action = domain.ActionContinue
	}

	return domain.AccountHealth{
		AccountID: accountID,
		Score:     int(healthScore),
		Factors: domain.RiskFactors{
			ConsecutiveFailures: consecutive,
			HourlyErrorRate:     hourlyRate,
			LastSuccessAt:       lastSuccess,
			SuspiciousActivity:  suspicious,
			RateLimitHits:       rateLastDay,
		},
		NextErrorProbability: probability,
		Recommended:          action,
		Confidence:           minFloat(float64(len(history))/100, 0.95),
		ComputedAt:           now,
	}
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
