package ratelimit

import (
	"sync"
	"time"

	"github.com/vietddude/scraperd/internal/scraping/metrics"
)

// Status is a point-in-time view of the request-rate window.
type Status struct {
	RequestsLastMinute int           `json:"requests_last_minute"`
	RequestsLastHour   int           `json:"requests_last_hour"`
	Limited            bool          `json:"limited"`
	SuggestedDelay     time.Duration `json:"suggested_delay"`
	NextAllowed        time.Time     `json:"next_allowed"`
}

// Limiter arbitrates the global request rate and tracks spend against the
// daily and monthly budgets. One instance is shared by every session; the
// timestamp ring and spend counters are the only cross-session mutable
// state in the engine.
type Limiter struct {
	mu  sync.RWMutex
	cfg Config

	timestamps  []time.Time
	spentToday  float64
	spentMonth  float64
	unitsToday  int
	resetAt     time.Time
	monthAnchor time.Month

	now func() time.Time
}

// NewLimiter creates a limiter for the given config.
func NewLimiter(cfg Config) *Limiter {
	now := time.Now()
	return &Limiter{
		cfg:         cfg,
		timestamps:  make([]time.Time, 0, cfg.RequestsPerHour),
		resetAt:     nextMidnight(now),
		monthAnchor: now.Month(),
		now:         time.Now,
	}
}

// Config returns the limiter's configuration.
func (l *Limiter) Config() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// CheckRateLimit reports the current window usage and, when a ceiling is
// reached, how long to wait. It never mutates state.
func (l *Limiter) CheckRateLimit() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()

	now := l.now()
	minuteAgo := now.Add(-time.Minute)
	hourAgo := now.Add(-time.Hour)

	var lastMinute, lastHour int
	var oldestInMinute, oldestInHour time.Time
	for _, ts := range l.timestamps {
		if ts.After(hourAgo) {
			lastHour++
			if oldestInHour.IsZero() {
				oldestInHour = ts
			}
			if ts.After(minuteAgo) {
				lastMinute++
				if oldestInMinute.IsZero() {
					oldestInMinute = ts
				}
			}
		}
	}

	status := Status{
		RequestsLastMinute: lastMinute,
		RequestsLastHour:   lastHour,
		SuggestedDelay:     l.cfg.RequestDelay,
		NextAllowed:        now,
	}

	// Whichever ceiling is hit, wait until its oldest entry ages out.
	if lastMinute >= l.cfg.RequestsPerMinute {
		status.Limited = true
		status.NextAllowed = oldestInMinute.Add(time.Minute)
	}
	if lastHour >= l.cfg.RequestsPerHour {
		status.Limited = true
		candidate := oldestInHour.Add(time.Hour)
		if candidate.After(status.NextAllowed) {
			status.NextAllowed = candidate
		}
	}
	if status.Limited {
		if wait := status.NextAllowed.Sub(now); wait > status.SuggestedDelay {
			status.SuggestedDelay = wait
		}
	}
	return status
}

// RecordRequest appends a request timestamp, prunes entries older than one
// hour and accumulates spend. The only mutating method.
func (l *Limiter) RecordRequest(units int, cost float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.After(l.resetAt) {
		l.spentToday = 0
		l.unitsToday = 0
		l.resetAt = nextMidnight(now)
	}
	if now.Month() != l.monthAnchor {
		l.spentMonth = 0
		l.monthAnchor = now.Month()
	}

	cutoff := now.Add(-time.Hour)
	kept := l.timestamps[:0]
	for _, ts := range l.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	l.timestamps = append(kept, now)

	l.unitsToday += units
	l.spentToday += cost
	l.spentMonth += cost

	metrics.RequestUnitsSpent.Add(float64(units))
	if l.cfg.DailyBudgetLimit > 0 {
		metrics.BudgetUtilization.Set(l.spentToday / l.cfg.DailyBudgetLimit * 100)
	}
}

// SpentToday returns the accumulated estimated spend since local midnight.
func (l *Limiter) SpentToday() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.spentToday
}

// Utilization returns how much of the hourly request ceiling is in use,
// in [0,1]. Used as the system-load proxy by risk assessment.
func (l *Limiter) Utilization() float64 {
	status := l.CheckRateLimit()
	if l.cfg.RequestsPerHour == 0 {
		return 0
	}
	u := float64(status.RequestsLastHour) / float64(l.cfg.RequestsPerHour)
	if u > 1 {
		u = 1
	}
	return u
}

// ShouldSkipAccount reports whether an account was scraped too recently
// to be worth spending budget on again.
func (l *Limiter) ShouldSkipAccount(lastScraped *time.Time) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.cfg.SkipRecentlyScraped || lastScraped == nil {
		return false
	}
	hours := l.now().Sub(*lastScraped).Hours()
	return hours < l.cfg.MinHoursBetweenScrapes
}

func nextMidnight(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
}
