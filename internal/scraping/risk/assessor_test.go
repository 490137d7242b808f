package risk

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/vietddude/scraperd/internal/core/domain"
)

type fakeHealth struct {
	scores map[string]int
}

func (f fakeHealth) Analyze(_ context.Context, accountID string, _ []domain.ScrapingError) domain.AccountHealth {
	score, ok := f.scores[accountID]
	if !ok {
		score = 100
	}
	return domain.AccountHealth{AccountID: accountID, Score: score}
}

type fakeHistory struct {
	errors map[string][]domain.ScrapingError
}

func (f fakeHistory) History(accountID string) []domain.ScrapingError { return f.errors[accountID] }

type fakeSessions struct {
	active int
	err    error
}

func (f fakeSessions) CountActive(context.Context) (int, error) { return f.active, f.err }

type fakeLoad struct{ u float64 }

func (f fakeLoad) Utilization() float64 { return f.u }

// daytime is a fixed in-hours clock so the off-hours factor stays out of
// tests that do not exercise it.
var daytime = time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

func newTestAssessor(h HealthSource, hist HistorySource, s SessionCounter, l LoadSource) *Assessor {
	a := NewAssessor(DefaultWeights(), h, hist, s, l)
	a.now = func() time.Time { return daytime }
	return a
}

func accounts(n int) []domain.Account {
	out := make([]domain.Account, n)
	for i := range out {
		out[i] = domain.Account{ID: fmt.Sprintf("acc-%d", i), Username: fmt.Sprintf("user%d", i)}
	}
	return out
}

func TestAssess_HealthyBaseline(t *testing.T) {
	a := newTestAssessor(fakeHealth{}, fakeHistory{}, fakeSessions{}, fakeLoad{})

	r := a.Assess(context.Background(), accounts(3), domain.SessionTypeMetrics, false)
	if r.Level != domain.RiskLow {
		t.Errorf("level = %s, want LOW", r.Level)
	}
	if !r.ShouldProceed {
		t.Error("healthy baseline should proceed")
	}
	if r.RecommendedAccountLimit != 3 {
		t.Errorf("account limit = %d, want all 3", r.RecommendedAccountLimit)
	}
}

func TestAssess_ConcurrencyThresholds(t *testing.T) {
	tests := []struct {
		name      string
		active    int
		wantScore float64
	}{
		{"at the moderate boundary", 5, 0},
		{"moderate concurrency", 6, DefaultWeights().ConcurrentModerate},
		{"at the heavy boundary", 10, DefaultWeights().ConcurrentModerate},
		{"heavy concurrency", 11, DefaultWeights().ConcurrentHeavy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAssessor(fakeHealth{}, fakeHistory{}, fakeSessions{active: tt.active}, fakeLoad{})
			r := a.Assess(context.Background(), accounts(2), domain.SessionTypeMetrics, false)
			if r.Score != tt.wantScore {
				t.Errorf("score = %v, want %v", r.Score, tt.wantScore)
			}
		})
	}
}

func TestAssess_OffHours(t *testing.T) {
	a := newTestAssessor(fakeHealth{}, fakeHistory{}, fakeSessions{}, fakeLoad{})

	for _, hour := range []int{0, 3, 5, 23} {
		a.now = func() time.Time {
			return time.Date(2026, 3, 10, hour, 30, 0, 0, time.UTC)
		}
		r := a.Assess(context.Background(), accounts(2), domain.SessionTypeMetrics, false)
		if r.Score != DefaultWeights().OffHours {
			t.Errorf("hour %d: score = %v, want off-hours weight %v", hour, r.Score, DefaultWeights().OffHours)
		}
	}

	a.now = func() time.Time { return daytime }
	if r := a.Assess(context.Background(), accounts(2), domain.SessionTypeMetrics, false); r.Score != 0 {
		t.Errorf("daytime score = %v, want 0", r.Score)
	}
}

func TestAssess_UnhealthyAccountsRaiseRisk(t *testing.T) {
	h := fakeHealth{scores: map[string]int{"acc-0": 10, "acc-1": 20}}
	a := newTestAssessor(h, fakeHistory{}, fakeSessions{}, fakeLoad{})

	r := a.Assess(context.Background(), accounts(2), domain.SessionTypeMetrics, false)
	if r.Score <= 0.25 {
		t.Errorf("score = %v, want above LOW for deeply unhealthy accounts", r.Score)
	}
	if len(r.Recommendations) == 0 {
		t.Error("low-health accounts should produce a recommendation")
	}
}

func TestAssess_HighRiskHalvesSession(t *testing.T) {
	// Unhealthy accounts + heavy concurrency lands in HIGH.
	h := fakeHealth{scores: map[string]int{
		"acc-0": 50, "acc-1": 50, "acc-2": 50, "acc-3": 50,
	}}
	a := newTestAssessor(h, fakeHistory{}, fakeSessions{active: 11}, fakeLoad{})

	r := a.Assess(context.Background(), accounts(4), domain.SessionTypeMetrics, false)
	if r.Level != domain.RiskHigh {
		t.Fatalf("level = %s (score %v), want HIGH", r.Level, r.Score)
	}
	if !r.ShouldProceed {
		t.Error("HIGH risk still proceeds")
	}
	if r.RecommendedAccountLimit != 2 {
		t.Errorf("account limit = %d, want half of 4", r.RecommendedAccountLimit)
	}
}

func TestAssess_ExtremeBlocksUnlessForced(t *testing.T) {
	h := fakeHealth{scores: map[string]int{
		"acc-0": 0, "acc-1": 0, "acc-2": 0, "acc-3": 0,
	}}
	sessions := fakeSessions{active: 11}
	load := fakeLoad{u: 1.0}

	a := newTestAssessor(h, fakeHistory{}, sessions, load)
	r := a.Assess(context.Background(), accounts(4), domain.SessionTypeMetrics, false)
	if r.Level != domain.RiskExtreme {
		t.Fatalf("level = %s (score %v), want EXTREME", r.Level, r.Score)
	}
	if r.ShouldProceed {
		t.Error("EXTREME without force must not proceed")
	}

	forced := a.Assess(context.Background(), accounts(4), domain.SessionTypeMetrics, true)
	if !forced.ShouldProceed {
		t.Error("forced EXTREME should proceed")
	}
	if forced.RecommendedAccountLimit != 1 {
		t.Errorf("forced limit = %d, want quarter of 4", forced.RecommendedAccountLimit)
	}
}

func TestAssess_ErrorPressure(t *testing.T) {
	recent := make([]domain.ScrapingError, 4)
	for i := range recent {
		recent[i] = domain.ScrapingError{
			Type:      domain.ErrorTimeout,
			Timestamp: daytime.Add(-time.Duration(i+1) * time.Minute),
		}
	}
	hist := fakeHistory{errors: map[string][]domain.ScrapingError{"acc-0": recent}}

	a := newTestAssessor(fakeHealth{}, hist, fakeSessions{}, fakeLoad{})
	r := a.Assess(context.Background(), accounts(2), domain.SessionTypeMetrics, false)
	if r.Score == 0 {
		t.Error("recent error pressure should raise the score")
	}
}

func TestAssess_LoadBelowThresholdIgnored(t *testing.T) {
	a := newTestAssessor(fakeHealth{}, fakeHistory{}, fakeSessions{}, fakeLoad{u: 0.69})
	if r := a.Assess(context.Background(), accounts(2), domain.SessionTypeMetrics, false); r.Score != 0 {
		t.Errorf("score = %v, want 0 below the 70%% utilization threshold", r.Score)
	}
}
