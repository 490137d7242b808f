// Package recovery picks the remedial action for a classified error.
// The selector is pure; executing a decision against a live session is the
// session manager's job, reached through narrow callbacks.
package recovery

import (
	"fmt"
	"math"
	"time"

	"github.com/vietddude/scraperd/internal/core/domain"
	"github.com/vietddude/scraperd/internal/scraping/metrics"
)

// Strategy is one of the fixed recovery actions.
type Strategy string

const (
	StrategyRetry         Strategy = "RETRY"
	StrategyBackoff       Strategy = "BACKOFF"
	StrategyPauseSession  Strategy = "PAUSE_SESSION"
	StrategySkip          Strategy = "SKIP"
	StrategyQuarantine    Strategy = "QUARANTINE"
	StrategyCancelSession Strategy = "CANCEL_SESSION"
)

// Decision is the selector's output.
type Decision struct {
	Strategy Strategy      `json:"strategy"`
	Delay    time.Duration `json:"delay,omitempty"`
	Reason   string        `json:"reason"`
}

// PatternMatcher is the escalation hook backed by the pattern analyzer.
type PatternMatcher interface {
	// Match reports whether the account/error-type pair matches any known
	// pattern, the aggregate risk in [0,1], and whether proactive
	// mitigations dominate the matches.
	Match(accountID string, errType domain.ErrorType) (matched bool, risk float64, proactive bool)
}

// Context carries everything the selector needs beyond the error itself.
type Context struct {
	Attempt          int
	MaxAttempts      int
	BackoffBase      time.Duration
	BackoffCap       time.Duration
	HealthAction     domain.HealthAction
	SessionCancelled bool
}

// SessionCallbacks are the narrow surface through which decisions act on a
// live session.
type SessionCallbacks struct {
	PauseSession   func(reason string) error
	CancelSession  func(reason string) error
	UpdateProgress func() error
}

// Selector chooses recovery strategies, escalating on pattern matches.
type Selector struct {
	matcher PatternMatcher
}

// NewSelector creates a selector. matcher may be nil (no escalation).
func NewSelector(matcher PatternMatcher) *Selector {
	return &Selector{matcher: matcher}
}

// Select picks a strategy for the error. Pure: no session state is touched.
func (s *Selector) Select(err domain.ScrapingError, ctx Context) Decision {
	d := s.base(err, ctx)
	d = s.escalate(err, d, ctx)
	metrics.RecoveryDecisions.WithLabelValues(string(d.Strategy)).Inc()
	return d
}

func (s *Selector) base(err domain.ScrapingError, ctx Context) Decision {
	// A quarantine recommendation from health monitoring overrides the
	// error's own classification.
	if ctx.HealthAction == domain.ActionQuarantine {
		return Decision{
			Strategy: StrategySkip,
			Reason:   fmt.Sprintf("account %s is quarantined by health monitoring", err.AccountID),
		}
	}

	if ctx.SessionCancelled {
		return Decision{
			Strategy: StrategyCancelSession,
			Reason:   "session was cancelled",
		}
	}

	if err.Type == domain.ErrorRateLimit {
		delay := err.RetryAfter
		if delay == 0 {
			delay = backoffDelay(ctx.BackoffBase, ctx.Attempt, ctx.BackoffCap)
		}
		return Decision{
			Strategy: StrategyBackoff,
			Delay:    delay,
			Reason:   fmt.Sprintf("rate limited, backing off %s", delay),
		}
	}

	if err.Retryable {
		if ctx.Attempt < ctx.MaxAttempts {
			delay := backoffDelay(ctx.BackoffBase, ctx.Attempt, ctx.BackoffCap)
			return Decision{
				Strategy: StrategyRetry,
				Delay:    delay,
				Reason: fmt.Sprintf("retryable %s, attempt %d/%d",
					err.Type, ctx.Attempt+1, ctx.MaxAttempts),
			}
		}
		if err.Severity == domain.SeverityHigh || err.Severity == domain.SeverityCritical {
			return Decision{
				Strategy: StrategyPauseSession,
				Reason: fmt.Sprintf("retries exhausted on %s severity %s",
					err.Type, err.Severity),
			}
		}
		return Decision{
			Strategy: StrategySkip,
			Reason:   fmt.Sprintf("retries exhausted on %s, skipping account", err.Type),
		}
	}

	return Decision{
		Strategy: StrategySkip,
		Reason:   fmt.Sprintf("%s is not retryable", err.Type),
	}
}

// escalate lets recognized error patterns harden a decision: dominant
// proactive patterns force a session pause; otherwise a match doubles a
// backoff delay, still subject to the cap.
func (s *Selector) escalate(err domain.ScrapingError, d Decision, ctx Context) Decision {
	if s.matcher == nil {
		return d
	}
	matched, risk, proactive := s.matcher.Match(err.AccountID, err.Type)
	if !matched {
		return d
	}

	if proactive && risk >= 0.7 &&
		d.Strategy != StrategySkip && d.Strategy != StrategyCancelSession {
		return Decision{
			Strategy: StrategyPauseSession,
			Reason:   fmt.Sprintf("proactive error pattern matched with risk %.2f", risk),
		}
	}
	if d.Strategy == StrategyBackoff {
		d.Delay = clampDelay(d.Delay*2, ctx.BackoffCap)
		d.Reason = fmt.Sprintf("%s (doubled: pattern risk %.2f)", d.Reason, risk)
	}
	return d
}

func clampDelay(d, limit time.Duration) time.Duration {
	if limit <= 0 {
		limit = 5 * time.Minute
	}
	if d > limit {
		return limit
	}
	return d
}

// backoffDelay is min(base * 2^attempt, max).
func backoffDelay(base time.Duration, attempt int, max time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if max <= 0 {
		max = 5 * time.Minute
	}
	delay := float64(base) * math.Pow(2, float64(attempt))
	if delay > float64(max) {
		return max
	}
	return time.Duration(delay)
}
