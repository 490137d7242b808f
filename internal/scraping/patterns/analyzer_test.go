package patterns

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/vietddude/scraperd/internal/core/domain"
)

func newTestAnalyzer(now time.Time) *Analyzer {
	a := NewAnalyzer(nil)
	a.now = func() time.Time { return now }
	return a
}

func recordN(a *Analyzer, n int, typ domain.ErrorType, accountID string, at time.Time) {
	for i := 0; i < n; i++ {
		id := accountID
		if id == "" {
			id = fmt.Sprintf("acc-%d", i)
		}
		a.Record(domain.ScrapingError{
			Type:      typ,
			AccountID: id,
			Timestamp: at.Add(time.Duration(i) * time.Second),
		})
	}
}

func TestFrequencyPattern(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	a := newTestAnalyzer(now)

	// Five rate-limit errors inside the five minute window, spread across
	// accounts so only the frequency miner fires for them.
	recordN(a, 5, domain.ErrorRateLimit, "", now.Add(-2*time.Minute))
	a.RunAnalysis()

	id := fmt.Sprintf("freq:%s:%s", domain.ErrorRateLimit, 5*time.Minute)
	var got domain.ErrorPattern
	var found bool
	for _, p := range a.Snapshot() {
		if p.ID == id {
			got, found = p, true
		}
	}
	if !found {
		t.Fatalf("no frequency pattern %s in snapshot", id)
	}
	if got.Frequency != 5 {
		t.Errorf("frequency = %d, want 5", got.Frequency)
	}
	if math.Abs(got.Confidence-0.25) > 1e-9 {
		t.Errorf("confidence = %v, want 0.25", got.Confidence)
	}
	if got.Mitigation != domain.MitigationPreventive {
		t.Errorf("mitigation = %s, want PREVENTIVE", got.Mitigation)
	}
	if got.Impact != domain.ImpactLow {
		t.Errorf("impact = %s, want LOW at count 5", got.Impact)
	}
}

func TestFrequencyImpactEscalation(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		typ   domain.ErrorType
		count int
		want  domain.Impact
	}{
		{"balance errors are always critical", domain.ErrorInsufficientBalance, 5, domain.ImpactCritical},
		{"auth errors are high", domain.ErrorAuthentication, 5, domain.ImpactHigh},
		{"volume over 15 is critical", domain.ErrorTimeout, 16, domain.ImpactCritical},
		{"volume over 10 is high", domain.ErrorTimeout, 11, domain.ImpactHigh},
		{"volume over 5 is medium", domain.ErrorTimeout, 6, domain.ImpactMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAnalyzer(now)
			recordN(a, tt.count, tt.typ, "", now.Add(-time.Minute))
			a.RunAnalysis()

			id := fmt.Sprintf("freq:%s:%s", tt.typ, 5*time.Minute)
			for _, p := range a.Snapshot() {
				if p.ID == id {
					if p.Impact != tt.want {
						t.Errorf("impact = %s, want %s", p.Impact, tt.want)
					}
					return
				}
			}
			t.Fatalf("pattern %s not found", id)
		})
	}
}

func TestAccountPattern(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	a := newTestAnalyzer(now)

	a.Record(domain.ScrapingError{Type: domain.ErrorTimeout, AccountID: "acc-7", Timestamp: now.Add(-3 * time.Minute)})
	a.Record(domain.ScrapingError{Type: domain.ErrorNetwork, AccountID: "acc-7", Timestamp: now.Add(-2 * time.Minute)})
	a.Record(domain.ScrapingError{Type: domain.ErrorTimeout, AccountID: "acc-7", Timestamp: now.Add(-time.Minute)})
	a.RunAnalysis()

	id := fmt.Sprintf("account:acc-7:%s", 5*time.Minute)
	for _, p := range a.Snapshot() {
		if p.ID == id {
			if p.Frequency != 3 {
				t.Errorf("frequency = %d, want 3", p.Frequency)
			}
			if math.Abs(p.Confidence-0.3) > 1e-9 {
				t.Errorf("confidence = %v, want 0.3", p.Confidence)
			}
			if p.Impact != domain.ImpactHigh || p.Mitigation != domain.MitigationProactive {
				t.Errorf("impact/mitigation = %s/%s, want HIGH/PROACTIVE", p.Impact, p.Mitigation)
			}
			if len(p.ErrorTypes) != 2 {
				t.Errorf("error types = %v, want deduplicated pair", p.ErrorTypes)
			}
			return
		}
	}
	t.Fatalf("pattern %s not found", id)
}

func TestSequencePattern(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	a := newTestAnalyzer(now)

	// TIMEOUT>TIMEOUT>RATE_LIMIT occurring twice in observation order.
	seq := []domain.ErrorType{
		domain.ErrorTimeout, domain.ErrorTimeout, domain.ErrorRateLimit,
		domain.ErrorTimeout, domain.ErrorTimeout, domain.ErrorRateLimit,
	}
	for i, typ := range seq {
		a.Record(domain.ScrapingError{
			Type:      typ,
			AccountID: fmt.Sprintf("acc-%d", i),
			Timestamp: now.Add(-time.Minute).Add(time.Duration(i) * time.Second),
		})
	}
	a.RunAnalysis()

	key := fmt.Sprintf("%s>%s>%s", domain.ErrorTimeout, domain.ErrorTimeout, domain.ErrorRateLimit)
	id := fmt.Sprintf("seq:%s:%s", key, 5*time.Minute)
	for _, p := range a.Snapshot() {
		if p.ID == id {
			if p.Frequency != 2 {
				t.Errorf("frequency = %d, want 2", p.Frequency)
			}
			if math.Abs(p.Confidence-0.4) > 1e-9 {
				t.Errorf("confidence = %v, want 0.4", p.Confidence)
			}
			return
		}
	}
	t.Fatalf("pattern %s not found; snapshot has %d patterns", id, len(a.Snapshot()))
}

func TestReanalysisOverwritesAndExpires(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	a := newTestAnalyzer(now)

	recordN(a, 5, domain.ErrorRateLimit, "", now.Add(-2*time.Minute))
	a.RunAnalysis()
	first := len(a.Snapshot())
	if first == 0 {
		t.Fatal("expected patterns after first pass")
	}

	// Re-running over the same history replaces rather than accumulates.
	a.RunAnalysis()
	if got := len(a.Snapshot()); got != first {
		t.Errorf("pattern count after re-analysis = %d, want %d", got, first)
	}

	// Once the history ages out of every window, the patterns go with it.
	a.now = func() time.Time { return now.Add(25 * time.Hour) }
	a.RunAnalysis()
	if got := len(a.Snapshot()); got != 0 {
		t.Errorf("pattern count after expiry = %d, want 0", got)
	}
}

func TestMatch(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	a := newTestAnalyzer(now)

	if matched, _, _ := a.Match("acc-1", domain.ErrorRateLimit); matched {
		t.Error("empty analyzer should not match")
	}

	a.Record(domain.ScrapingError{Type: domain.ErrorTimeout, AccountID: "acc-9", Timestamp: now.Add(-3 * time.Minute)})
	a.Record(domain.ScrapingError{Type: domain.ErrorTimeout, AccountID: "acc-9", Timestamp: now.Add(-2 * time.Minute)})
	a.Record(domain.ScrapingError{Type: domain.ErrorTimeout, AccountID: "acc-9", Timestamp: now.Add(-time.Minute)})
	a.RunAnalysis()

	matched, risk, _ := a.Match("acc-9", domain.ErrorUnknown)
	if !matched {
		t.Fatal("account with its own pattern should match on account id alone")
	}
	if risk <= 0 || risk > 1 {
		t.Errorf("risk = %v, want within (0, 1]", risk)
	}

	if matched, _, _ := a.Match("acc-other", domain.ErrorRateLimit); matched {
		t.Error("unrelated account and type should not match")
	}
}

func TestHistoryBounds(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	a := newTestAnalyzer(now)

	for i := 0; i < historyLimit+50; i++ {
		a.Record(domain.ScrapingError{Type: domain.ErrorUnknown, AccountID: "acc-1", Timestamp: now})
	}
	if got := a.HistoryLen(); got != historyLimit {
		t.Errorf("history length = %d, want capped at %d", got, historyLimit)
	}
}

func TestHistoryPerAccount(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	a := newTestAnalyzer(now)

	a.Record(domain.ScrapingError{Type: domain.ErrorTimeout, AccountID: "acc-1", Timestamp: now.Add(-2 * time.Minute)})
	a.Record(domain.ScrapingError{Type: domain.ErrorNetwork, AccountID: "acc-2", Timestamp: now.Add(-time.Minute)})
	a.Record(domain.ScrapingError{Type: domain.ErrorRateLimit, AccountID: "acc-1", Timestamp: now})

	got := a.History("acc-1")
	if len(got) != 2 {
		t.Fatalf("history for acc-1 has %d entries, want 2", len(got))
	}
	if got[0].Type != domain.ErrorRateLimit {
		t.Errorf("most recent entry = %s, want RATE_LIMIT_EXCEEDED first", got[0].Type)
	}
}
