// Package patterns mines the rolling error history for recurring shapes.
//
// Analysis is deferred: Record enqueues a request on a channel consumed by
// a single worker goroutine, so pattern mining never blocks the scraping
// path. History is append-ordered and bounded; the pattern store is keyed
// by deterministic ids so recomputation overwrites instead of accumulating.
package patterns

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vietddude/scraperd/internal/core/domain"
	"github.com/vietddude/scraperd/internal/scraping/metrics"
)

const (
	historyLimit      = 10000
	frequencyMinCount = 5
	accountMinCount   = 3
	sequenceLength    = 3
	sequenceMinCount  = 2
)

// windows are the spans each analysis pass runs over, independently.
var windows = []time.Duration{
	5 * time.Minute,
	30 * time.Minute,
	2 * time.Hour,
	24 * time.Hour,
}

// Analyzer keeps the bounded error history and the derived pattern store.
type Analyzer struct {
	mu       sync.RWMutex
	history  []domain.ScrapingError // most recent first
	patterns map[string]domain.ErrorPattern

	analyze chan struct{}
	log     *slog.Logger

	now func() time.Time
}

// NewAnalyzer creates an analyzer. Call Start to run the analysis worker.
func NewAnalyzer(log *slog.Logger) *Analyzer {
	if log == nil {
		log = slog.Default()
	}
	return &Analyzer{
		history:  make([]domain.ScrapingError, 0, 256),
		patterns: make(map[string]domain.ErrorPattern),
		analyze:  make(chan struct{}, 64),
		log:      log,
		now:      time.Now,
	}
}

// Record appends an error to the history (most recent first, oldest dropped
// past the cap) and schedules re-analysis. Never blocks.
func (a *Analyzer) Record(err domain.ScrapingError) {
	a.mu.Lock()
	a.history = append([]domain.ScrapingError{err}, a.history...)
	if len(a.history) > historyLimit {
		a.history = a.history[:historyLimit]
	}
	a.mu.Unlock()

	select {
	case a.analyze <- struct{}{}:
	default:
		// A pass is already queued; it will see this entry.
	}
}

// Start runs the analysis worker until ctx is cancelled.
func (a *Analyzer) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-a.analyze:
				a.runAnalysis()
			}
		}
	}()
}

// RunAnalysis performs one synchronous analysis pass. Exposed for the
// worker and for tests that need deterministic timing.
func (a *Analyzer) RunAnalysis() {
	a.runAnalysis()
}

func (a *Analyzer) runAnalysis() {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	found := make(map[string]domain.ErrorPattern)

	for _, window := range windows {
		recent := a.withinWindow(now, window)
		if len(recent) == 0 {
			continue
		}
		a.mineFrequency(recent, window, now, found)
		a.mineAccounts(recent, window, now, found)
		a.mineSequences(recent, window, now, found)
	}

	for id, p := range found {
		a.patterns[id] = p
	}
	// Drop stale patterns whose window no longer produces a hit.
	for id := range a.patterns {
		if _, ok := found[id]; !ok {
			delete(a.patterns, id)
		}
	}

	counts := map[domain.Impact]int{}
	for _, p := range a.patterns {
		counts[p.Impact]++
	}
	for _, impact := range []domain.Impact{
		domain.ImpactLow, domain.ImpactMedium, domain.ImpactHigh, domain.ImpactCritical,
	} {
		metrics.PatternsActive.WithLabelValues(string(impact)).Set(float64(counts[impact]))
	}

	if len(found) > 0 {
		a.log.Debug("pattern analysis complete",
			"patterns", len(a.patterns), "history", len(a.history))
	}
}

// withinWindow returns history entries newer than now-window, preserving
// most-recent-first order. History is append-ordered so the prefix suffices.
func (a *Analyzer) withinWindow(now time.Time, window time.Duration) []domain.ScrapingError {
	cutoff := now.Add(-window)
	for i, e := range a.history {
		if !e.Timestamp.After(cutoff) {
			return a.history[:i]
		}
	}
	return a.history
}

func (a *Analyzer) mineFrequency(
	recent []domain.ScrapingError,
	window time.Duration,
	now time.Time,
	out map[string]domain.ErrorPattern,
) {
	byType := make(map[domain.ErrorType]int)
	for _, e := range recent {
		byType[e.Type]++
	}

	for typ, count := range byType {
		if count < frequencyMinCount {
			continue
		}
		id := fmt.Sprintf("freq:%s:%s", typ, window)
		out[id] = domain.ErrorPattern{
			ID:         id,
			ErrorTypes: []domain.ErrorType{typ},
			Frequency:  count,
			Window:     window,
			Confidence: capFloat(float64(count)/20, 1),
			Impact:     frequencyImpact(typ, count),
			Mitigation: domain.MitigationPreventive,
			DetectedAt: now,
		}
	}
}

func frequencyImpact(typ domain.ErrorType, count int) domain.Impact {
	switch {
	case typ == domain.ErrorInsufficientBalance || count > 15:
		return domain.ImpactCritical
	case typ == domain.ErrorAuthentication || count > 10:
		return domain.ImpactHigh
	case count > 5:
		return domain.ImpactMedium
	default:
		return domain.ImpactLow
	}
}

func (a *Analyzer) mineAccounts(
	recent []domain.ScrapingError,
	window time.Duration,
	now time.Time,
	out map[string]domain.ErrorPattern,
) {
	byAccount := make(map[string][]domain.ErrorType)
	for _, e := range recent {
		if e.AccountID == "" {
			continue
		}
		byAccount[e.AccountID] = append(byAccount[e.AccountID], e.Type)
	}

	for accountID, types := range byAccount {
		count := len(types)
		if count < accountMinCount {
			continue
		}
		id := fmt.Sprintf("account:%s:%s", accountID, window)
		out[id] = domain.ErrorPattern{
			ID:         id,
			ErrorTypes: uniqueTypes(types),
			Frequency:  count,
			Window:     window,
			AccountIDs: []string{accountID},
			Confidence: capFloat(float64(count)/10, 0.9),
			Impact:     domain.ImpactHigh,
			Mitigation: domain.MitigationProactive,
			DetectedAt: now,
		}
	}
}

func (a *Analyzer) mineSequences(
	recent []domain.ScrapingError,
	window time.Duration,
	now time.Time,
	out map[string]domain.ErrorPattern,
) {
	if len(recent) < sequenceLength {
		return
	}

	// Walk oldest-to-newest so sequences read in observation order.
	seqCounts := make(map[string]int)
	for i := len(recent) - 1; i >= sequenceLength-1; i-- {
		parts := make([]string, 0, sequenceLength)
		for j := 0; j < sequenceLength; j++ {
			parts = append(parts, string(recent[i-j].Type))
		}
		seqCounts[strings.Join(parts, ">")]++
	}

	for seq, count := range seqCounts {
		if count < sequenceMinCount {
			continue
		}
		parts := strings.Split(seq, ">")
		types := make([]domain.ErrorType, len(parts))
		for i, p := range parts {
			types[i] = domain.ErrorType(p)
		}
		id := fmt.Sprintf("seq:%s:%s", seq, window)
		out[id] = domain.ErrorPattern{
			ID:         id,
			ErrorTypes: types,
			Frequency:  count,
			Window:     window,
			Confidence: capFloat(float64(count)/5, 0.8),
			Impact:     domain.ImpactMedium,
			Mitigation: domain.MitigationPreventive,
			DetectedAt: now,
		}
	}
}

// Match reports whether the account or error type appears in any known
// pattern, the aggregate risk (sum of matched confidences, capped at 1) and
// whether proactive mitigations dominate the matches.
func (a *Analyzer) Match(
	accountID string,
	errType domain.ErrorType,
) (matched bool, risk float64, proactive bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var proactiveCount, total int
	for _, p := range a.patterns {
		if !patternMatches(p, accountID, errType) {
			continue
		}
		total++
		risk += p.Confidence
		if p.Mitigation == domain.MitigationProactive {
			proactiveCount++
		}
	}
	if total == 0 {
		return false, 0, false
	}
	return true, capFloat(risk, 1), proactiveCount*2 > total
}

func patternMatches(p domain.ErrorPattern, accountID string, errType domain.ErrorType) bool {
	for _, id := range p.AccountIDs {
		if id == accountID {
			return true
		}
	}
	for _, t := range p.ErrorTypes {
		if t == errType {
			return true
		}
	}
	return false
}

// Snapshot returns the current patterns sorted by confidence, strongest
// first. Used by the analytics query.
func (a *Analyzer) Snapshot() []domain.ErrorPattern {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]domain.ErrorPattern, 0, len(a.patterns))
	for _, p := range a.patterns {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// HistoryLen returns the current history size.
func (a *Analyzer) HistoryLen() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.history)
}

// History returns the errors recorded for one account, most recent first.
// The health monitor consumes this.
func (a *Analyzer) History(accountID string) []domain.ScrapingError {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var out []domain.ScrapingError
	for _, e := range a.history {
		if e.AccountID == accountID {
			out = append(out, e)
		}
	}
	return out
}

func uniqueTypes(types []domain.ErrorType) []domain.ErrorType {
	seen := make(map[domain.ErrorType]struct{}, len(types))
	var out []domain.ErrorType
	for _, t := range types {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func capFloat(v, max float64) float64 {
	if v > max {
		return max
	}
	return v
}
