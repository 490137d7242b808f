package recovery

import (
	"testing"
	"time"

	"github.com/vietddude/scraperd/internal/core/domain"
)

type fakeMatcher struct {
	matched   bool
	risk      float64
	proactive bool
}

func (f fakeMatcher) Match(string, domain.ErrorType) (bool, float64, bool) {
	return f.matched, f.risk, f.proactive
}

func rateLimitErr() domain.ScrapingError {
	return domain.ScrapingError{
		Type:      domain.ErrorRateLimit,
		Severity:  domain.SeverityHigh,
		AccountID: "acc-1",
		Retryable: true,
	}
}

func TestSelect_QuarantineOverridesEverything(t *testing.T) {
	s := NewSelector(nil)
	ctx := Context{Attempt: 0, MaxAttempts: 3, HealthAction: domain.ActionQuarantine}

	// Even errors that would otherwise back off or retry are skipped once
	// health monitoring has quarantined the account.
	for _, err := range []domain.ScrapingError{
		rateLimitErr(),
		{Type: domain.ErrorTimeout, Severity: domain.SeverityMedium, Retryable: true},
		{Type: domain.ErrorUnknown, Severity: domain.SeverityMedium, Retryable: true},
		{Type: domain.ErrorAuthentication, Severity: domain.SeverityCritical},
	} {
		d := s.Select(err, ctx)
		if d.Strategy != StrategySkip {
			t.Errorf("%s with quarantined account: strategy = %s, want SKIP", err.Type, d.Strategy)
		}
	}
}

func TestSelect_RateLimitHonorsRetryAfter(t *testing.T) {
	s := NewSelector(nil)
	err := rateLimitErr()
	err.RetryAfter = 42 * time.Second

	d := s.Select(err, Context{Attempt: 0, MaxAttempts: 3, BackoffBase: time.Second, BackoffCap: time.Minute})
	if d.Strategy != StrategyBackoff {
		t.Fatalf("strategy = %s, want BACKOFF", d.Strategy)
	}
	if d.Delay != 42*time.Second {
		t.Errorf("delay = %v, want server-provided 42s", d.Delay)
	}
}

func TestSelect_RateLimitExponentialWithoutRetryAfter(t *testing.T) {
	s := NewSelector(nil)
	ctx := Context{MaxAttempts: 5, BackoffBase: time.Second, BackoffCap: time.Minute}

	wants := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	for attempt, want := range wants {
		ctx.Attempt = attempt
		d := s.Select(rateLimitErr(), ctx)
		if d.Strategy != StrategyBackoff {
			t.Fatalf("attempt %d: strategy = %s, want BACKOFF", attempt, d.Strategy)
		}
		if d.Delay != want {
			t.Errorf("attempt %d: delay = %v, want %v", attempt, d.Delay, want)
		}
	}

	// Past the cap the delay stays flat.
	ctx.Attempt = 20
	if d := s.Select(rateLimitErr(), ctx); d.Delay != time.Minute {
		t.Errorf("capped delay = %v, want 1m", d.Delay)
	}
}

func TestSelect_RetryableUnderMax(t *testing.T) {
	s := NewSelector(nil)
	err := domain.ScrapingError{Type: domain.ErrorTimeout, Severity: domain.SeverityMedium, Retryable: true}

	d := s.Select(err, Context{Attempt: 1, MaxAttempts: 3, BackoffBase: time.Second, BackoffCap: time.Minute})
	if d.Strategy != StrategyRetry {
		t.Fatalf("strategy = %s, want RETRY", d.Strategy)
	}
	if d.Delay != 2*time.Second {
		t.Errorf("delay = %v, want 2s for attempt 1", d.Delay)
	}
}

func TestSelect_ExhaustedRetries(t *testing.T) {
	s := NewSelector(nil)
	ctx := Context{Attempt: 3, MaxAttempts: 3, BackoffBase: time.Second, BackoffCap: time.Minute}

	tests := []struct {
		name string
		err  domain.ScrapingError
		want Strategy
	}{
		{
			name: "high severity pauses the session",
			err:  domain.ScrapingError{Type: domain.ErrorTimeout, Severity: domain.SeverityHigh, Retryable: true},
			want: StrategyPauseSession,
		},
		{
			name: "critical severity pauses the session",
			err:  domain.ScrapingError{Type: domain.ErrorNetwork, Severity: domain.SeverityCritical, Retryable: true},
			want: StrategyPauseSession,
		},
		{
			name: "medium severity skips the account",
			err:  domain.ScrapingError{Type: domain.ErrorUnknown, Severity: domain.SeverityMedium, Retryable: true},
			want: StrategySkip,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if d := s.Select(tt.err, ctx); d.Strategy != tt.want {
				t.Errorf("strategy = %s, want %s", d.Strategy, tt.want)
			}
		})
	}
}

func TestSelect_NonRetryableSkips(t *testing.T) {
	s := NewSelector(nil)
	err := domain.ScrapingError{Type: domain.ErrorAccountNotFound, Severity: domain.SeverityLow}

	if d := s.Select(err, Context{Attempt: 0, MaxAttempts: 3}); d.Strategy != StrategySkip {
		t.Errorf("strategy = %s, want SKIP", d.Strategy)
	}
}

func TestSelect_CancelledSession(t *testing.T) {
	s := NewSelector(nil)
	d := s.Select(rateLimitErr(), Context{SessionCancelled: true})
	if d.Strategy != StrategyCancelSession {
		t.Errorf("strategy = %s, want CANCEL_SESSION", d.Strategy)
	}
}

func TestSelect_ProactivePatternEscalatesToPause(t *testing.T) {
	s := NewSelector(fakeMatcher{matched: true, risk: 0.8, proactive: true})

	d := s.Select(rateLimitErr(), Context{Attempt: 0, MaxAttempts: 3, BackoffBase: time.Second, BackoffCap: time.Minute})
	if d.Strategy != StrategyPauseSession {
		t.Errorf("strategy = %s, want PAUSE_SESSION on proactive high-risk pattern", d.Strategy)
	}
}

func TestSelect_PatternDoublesBackoff(t *testing.T) {
	s := NewSelector(fakeMatcher{matched: true, risk: 0.4, proactive: false})

	d := s.Select(rateLimitErr(), Context{Attempt: 1, MaxAttempts: 3, BackoffBase: time.Second, BackoffCap: time.Minute})
	if d.Strategy != StrategyBackoff {
		t.Fatalf("strategy = %s, want BACKOFF", d.Strategy)
	}
	if d.Delay != 4*time.Second {
		t.Errorf("delay = %v, want doubled 4s", d.Delay)
	}
}

func TestSelect_PatternDoublingRespectsCap(t *testing.T) {
	s := NewSelector(fakeMatcher{matched: true, risk: 0.4, proactive: false})
	err := rateLimitErr()
	err.RetryAfter = 50 * time.Second

	d := s.Select(err, Context{Attempt: 0, MaxAttempts: 3, BackoffBase: time.Second, BackoffCap: time.Minute})
	if d.Strategy != StrategyBackoff {
		t.Fatalf("strategy = %s, want BACKOFF", d.Strategy)
	}
	if d.Delay != time.Minute {
		t.Errorf("delay = %v, want the doubled delay clamped to 1m", d.Delay)
	}
}

func TestSelect_PatternDoesNotResurrectSkip(t *testing.T) {
	s := NewSelector(fakeMatcher{matched: true, risk: 0.9, proactive: true})
	err := domain.ScrapingError{Type: domain.ErrorAccountNotFound, Severity: domain.SeverityLow}

	if d := s.Select(err, Context{Attempt: 0, MaxAttempts: 3}); d.Strategy != StrategySkip {
		t.Errorf("strategy = %s, want SKIP to survive escalation", d.Strategy)
	}
}
