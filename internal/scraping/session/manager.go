package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/scraperd/internal/core/domain"
	"github.com/vietddude/scraperd/internal/infra/apiclient"
	"github.com/vietddude/scraperd/internal/infra/storage"
	"github.com/vietddude/scraperd/internal/scraping/classify"
	"github.com/vietddude/scraperd/internal/scraping/health"
	"github.com/vietddude/scraperd/internal/scraping/metrics"
	"github.com/vietddude/scraperd/internal/scraping/patterns"
	"github.com/vietddude/scraperd/internal/scraping/ratelimit"
	"github.com/vietddude/scraperd/internal/scraping/recovery"
	"github.com/vietddude/scraperd/internal/scraping/risk"
)

const backoffCap = 5 * time.Minute

// StartRequest asks the manager to create and run a new session.
type StartRequest struct {
	Type        domain.SessionType `json:"type"`
	AccountIDs  []string           `json:"account_ids,omitempty"`
	TriggeredBy string             `json:"triggered_by"`
	Force       bool               `json:"force"`
}

// ControlResult reports a lifecycle action's outcome.
type ControlResult struct {
	Previous domain.SessionStatus `json:"previous"`
	Current  domain.SessionStatus `json:"current"`
}

// runtime is the in-process handle for an active session's worker.
type runtime struct {
	cancel context.CancelFunc
	resume chan struct{}
}

// Manager owns every session's durable state. All mutations flow through
// the pure Transition/ApplyProgress functions; the manager executes the
// emitted events against storage and the event log.
type Manager struct {
	sessions storage.SessionRepository
	accounts storage.AccountRepository
	events   storage.EventLogRepository

	limiter    *ratelimit.Limiter
	selector   *recovery.Selector
	analyzer   *patterns.Analyzer
	healthMon  *health.Monitor
	quarantine health.Quarantiner
	assessor   *risk.Assessor
	client     apiclient.Client
	log        *slog.Logger

	mu      sync.Mutex
	active  map[string]*runtime
	baseCtx context.Context
}

// NewManager wires the orchestration engine together.
func NewManager(
	ctx context.Context,
	sessions storage.SessionRepository,
	accounts storage.AccountRepository,
	events storage.EventLogRepository,
	limiter *ratelimit.Limiter,
	selector *recovery.Selector,
	analyzer *patterns.Analyzer,
	healthMon *health.Monitor,
	quarantine health.Quarantiner,
	assessor *risk.Assessor,
	client apiclient.Client,
	log *slog.Logger,
) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		sessions:   sessions,
		accounts:   accounts,
		events:     events,
		limiter:    limiter,
		selector:   selector,
		analyzer:   analyzer,
		healthMon:  healthMon,
		quarantine: quarantine,
		assessor:   assessor,
		client:     client,
		log:        log,
		active:     make(map[string]*runtime),
		baseCtx:    ctx,
	}
}

// StartSession runs the pre-flight gate, creates the session and launches
// its sequential worker. On an EXTREME risk without force, no session is
// created and the risk is returned with a nil session.
func (m *Manager) StartSession(
	ctx context.Context,
	req StartRequest,
) (*domain.Session, *domain.SessionRisk, error) {
	targets, err := m.resolveAccounts(ctx, req.AccountIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve accounts: %w", err)
	}
	if len(targets) == 0 {
		return nil, nil, fmt.Errorf("no eligible accounts to scrape")
	}

	assessment := m.assessor.Assess(ctx, targets, req.Type, req.Force)
	if !assessment.ShouldProceed {
		m.log.Warn("session blocked by risk assessment",
			"level", assessment.Level, "factors", assessment.Factors)
		return nil, &assessment, nil
	}
	if assessment.RecommendedAccountLimit < len(targets) {
		targets = targets[:assessment.RecommendedAccountLimit]
	}

	now := time.Now()
	sess := domain.Session{
		ID:            uuid.New().String(),
		Type:          req.Type,
		Status:        domain.SessionStatusPending,
		TotalAccounts: len(targets),
		TriggeredBy:   req.TriggeredBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, a := range targets {
		sess.AccountIDs = append(sess.AccountIDs, a.ID)
	}

	next, events, err := Transition(sess, ActionStart, now)
	if err != nil {
		return nil, nil, err
	}
	if err := m.applyEvents(ctx, &next, events); err != nil {
		return nil, nil, err
	}

	m.launch(&next, targets)
	return &next, &assessment, nil
}

// Control applies an operator action to a session. Illegal actions are
// rejected with ErrIllegalTransition and leave the status unchanged.
func (m *Manager) Control(
	ctx context.Context,
	id string,
	action Action,
) (ControlResult, error) {
	sess, err := m.sessions.Get(ctx, id)
	if err != nil {
		return ControlResult{}, err
	}

	now := time.Now()
	next, events, err := Transition(*sess, action, now)
	if err != nil {
		return ControlResult{Previous: sess.Status, Current: sess.Status}, err
	}
	if err := m.applyEvents(ctx, &next, events); err != nil {
		return ControlResult{}, err
	}

	m.mu.Lock()
	rt := m.active[id]
	m.mu.Unlock()

	switch action {
	case ActionStop:
		if rt != nil {
			rt.cancel()
		}
	case ActionResume:
		if rt != nil {
			select {
			case rt.resume <- struct{}{}:
			default:
			}
		}
	case ActionStart:
		// Restarting a failed/cancelled session re-resolves its targets.
		targets, rerr := m.resolveAccounts(ctx, next.AccountIDs)
		if rerr != nil {
			return ControlResult{}, fmt.Errorf("resolve accounts: %w", rerr)
		}
		next.TotalAccounts = len(targets)
		m.launch(&next, targets)
	}

	return ControlResult{Previous: sess.Status, Current: next.Status}, nil
}

// Get returns the full session projection.
func (m *Manager) Get(ctx context.Context, id string) (*domain.Session, error) {
	return m.sessions.Get(ctx, id)
}

// resolveAccounts builds the target list: explicit ids when given,
// otherwise the whole inventory, freshness-filtered, owned-first, capped
// by config and by what the budget affords.
func (m *Manager) resolveAccounts(
	ctx context.Context,
	ids []string,
) ([]domain.Account, error) {
	var (
		accounts []domain.Account
		err      error
	)
	if len(ids) > 0 {
		accounts, err = m.accounts.GetByIDs(ctx, ids)
	} else {
		accounts, err = m.accounts.List(ctx)
	}
	if err != nil {
		return nil, err
	}

	cfg := m.limiter.Config()

	eligible := accounts[:0]
	for _, a := range accounts {
		if m.limiter.ShouldSkipAccount(a.LastScrapedAt) {
			continue
		}
		eligible = append(eligible, a)
	}

	if cfg.PrioritizeOwnedAccounts {
		sort.SliceStable(eligible, func(i, j int) bool {
			return eligible[i].Owned && !eligible[j].Owned
		})
	}

	limit := len(eligible)
	if cfg.MaxAccountsPerSession > 0 && limit > cfg.MaxAccountsPerSession {
		limit = cfg.MaxAccountsPerSession
	}
	if affordable := m.limiter.AnalyzeCosts(limit).AccountsWithinBudget; affordable < limit {
		limit = affordable
	}
	return eligible[:limit], nil
}

// launch transitions the session to RUNNING and starts its worker.
func (m *Manager) launch(sess *domain.Session, targets []domain.Account) {
	ctx, cancel := context.WithCancel(m.baseCtx)
	rt := &runtime{cancel: cancel, resume: make(chan struct{}, 1)}

	m.mu.Lock()
	m.active[sess.ID] = rt
	m.mu.Unlock()
	metrics.SessionsActive.Inc()

	go func() {
		defer func() {
			cancel()
			m.mu.Lock()
			delete(m.active, sess.ID)
			m.mu.Unlock()
			metrics.SessionsActive.Dec()
		}()
		m.run(ctx, *sess, targets, rt)
	}()
}

// run is the sequential per-session worker. Accounts are processed one at
// a time: the external API enforces a global ceiling the shared limiter
// arbitrates, so fanning out buys contention, not throughput.
func (m *Manager) run(
	ctx context.Context,
	sess domain.Session,
	targets []domain.Account,
	rt *runtime,
) {
	now := time.Now()
	sess2, events := MarkRunning(sess, now)
	sess = sess2
	if err := m.applyEvents(ctx, &sess, events); err != nil {
		m.log.Error("failed to persist running state", "session", sess.ID, "error", err)
		return
	}
	started := now

	for i, account := range targets {
		// Cancellation takes effect at the account boundary.
		if ctx.Err() != nil {
			m.finish(ctx, &sess, domain.SessionStatusCancelled, "")
			return
		}
		if !m.waitWhilePaused(ctx, &sess, rt) {
			m.finish(ctx, &sess, domain.SessionStatusCancelled, "")
			return
		}

		outcome := m.processAccount(ctx, &sess, account, rt)
		switch outcome {
		case outcomeCompleted:
			sess.CompletedAccounts++
			metrics.AccountsScraped.WithLabelValues(string(sess.Type), "completed").Inc()
		case outcomeFailed:
			sess.FailedAccounts++
			metrics.AccountsScraped.WithLabelValues(string(sess.Type), "failed").Inc()
		case outcomeSkipped:
			sess.SkippedAccounts++
			metrics.AccountsScraped.WithLabelValues(string(sess.Type), "skipped").Inc()
		case outcomeCancelled:
			m.finish(ctx, &sess, domain.SessionStatusCancelled, "")
			return
		case outcomeRateLimited:
			m.finish(ctx, &sess, domain.SessionStatusRateLimited, sess.LastError)
			return
		case outcomeAborted:
			m.finish(ctx, &sess, domain.SessionStatusFailed, sess.LastError)
			return
		}

		// An operator PAUSE or STOP may have been persisted while the
		// account was in flight; fold the stored status in so the
		// progress save cannot overwrite it.
		m.adoptStoredStatus(ctx, &sess)
		m.updateEstimate(&sess, started)
		next, progressEvents := ApplyProgress(sess, time.Now())
		sess = next
		if err := m.applyEvents(ctx, &sess, progressEvents); err != nil {
			m.log.Error("failed to persist progress", "session", sess.ID, "error", err)
		}
		if sess.Status.Terminal() {
			return
		}

		// Fixed inter-account delay, applied even on success.
		if i < len(targets)-1 {
			if !sleepCtx(ctx, m.limiter.Config().RequestDelay) {
				m.finish(ctx, &sess, domain.SessionStatusCancelled, "")
				return
			}
		}
	}

	// All accounts consumed; ApplyProgress normally completed the session
	// already, but a zero-target loop or a pause landing on the final
	// account falls through to here.
	if sess.Status.Terminal() {
		return
	}
	if !m.waitWhilePaused(ctx, &sess, rt) {
		m.finish(ctx, &sess, domain.SessionStatusCancelled, "")
		return
	}
	m.finish(ctx, &sess, domain.SessionStatusCompleted, "")
}

// adoptStoredStatus re-reads the persisted session and adopts any status
// change an operator action applied concurrently. The worker's local copy
// remains authoritative for progress counts only.
func (m *Manager) adoptStoredStatus(ctx context.Context, sess *domain.Session) {
	stored, err := m.sessions.Get(ctx, sess.ID)
	if err != nil {
		m.log.Error("failed to read session state", "session", sess.ID, "error", err)
		return
	}
	if stored.Status != sess.Status {
		sess.Status = stored.Status
		sess.EndedAt = stored.EndedAt
	}
}

type accountOutcome int

const (
	outcomeCompleted accountOutcome = iota
	outcomeFailed
	outcomeSkipped
	outcomeCancelled
	outcomeRateLimited
	outcomeAborted
)

// processAccount runs the rate-limited fetch/classify/recover loop for a
// single account until it reaches an outcome.
func (m *Manager) processAccount(
	ctx context.Context,
	sess *domain.Session,
	account domain.Account,
	rt *runtime,
) accountOutcome {
	cfg := m.limiter.Config()

	if m.quarantine != nil {
		if q, err := m.quarantine.IsQuarantined(ctx, account.ID); err == nil && q {
			m.logEvent(ctx, sess.ID, account.ID, "info", "account quarantined, skipping")
			return outcomeSkipped
		}
	}

	for attempt := 0; ; attempt++ {
		// Rate-limiter wait is a suspension point before each call.
		status := m.limiter.CheckRateLimit()
		if status.Limited {
			m.log.Debug("rate limited, waiting",
				"session", sess.ID, "delay", status.SuggestedDelay)
			if !sleepCtx(ctx, status.SuggestedDelay) {
				return outcomeCancelled
			}
		}

		profile, units, err := m.client.FetchProfile(ctx, account.Username)
		if err == nil {
			cost := float64(units) * cfg.CostPerUnit
			m.limiter.RecordRequest(units, cost)
			sess.RequestUnits += units
			sess.EstimatedCost += cost
			m.healthMon.RecordSuccess(account.ID)
			if terr := m.accounts.TouchLastScraped(ctx, account.ID, time.Now()); terr != nil {
				m.log.Warn("failed to touch last-scraped",
					"account", account.ID, "error", terr)
			}
			m.logEvent(ctx, sess.ID, account.ID, "info",
				fmt.Sprintf("scraped %s: %d followers (%d units)",
					account.Username, profile.Followers, units))
			return outcomeCompleted
		}

		raw, ok := err.(*apiclient.RawError)
		if !ok {
			// The client contract says this can't happen; classify the
			// message anyway rather than leak a raw failure.
			raw = &apiclient.RawError{Message: err.Error()}
		}
		serr := classify.Classify(raw, classify.Context{
			AccountID: account.ID,
			SessionID: sess.ID,
			Attempt:   attempt,
		})
		sess.ErrorCount++
		sess.LastError = fmt.Sprintf("%s: %s", serr.Type, serr.Message)
		metrics.ScrapeErrors.WithLabelValues(string(serr.Type), string(serr.Severity)).Inc()
		m.logEvent(ctx, sess.ID, account.ID, "error", sess.LastError)

		m.analyzer.Record(serr)
		m.healthMon.Invalidate(account.ID)
		accountHealth := m.healthMon.Analyze(ctx, account.ID, m.analyzer.History(account.ID))

		decision := m.selector.Select(serr, recovery.Context{
			Attempt:          attempt,
			MaxAttempts:      cfg.MaxRetryAttempts,
			BackoffBase:      cfg.RetryBackoffBase,
			BackoffCap:       backoffCap,
			HealthAction:     accountHealth.Recommended,
			SessionCancelled: ctx.Err() != nil,
		})
		m.log.Debug("recovery decision",
			"session", sess.ID, "account", account.ID,
			"strategy", decision.Strategy, "reason", decision.Reason)

		switch decision.Strategy {
		case recovery.StrategyRetry:
			if !sleepCtx(ctx, decision.Delay) {
				return outcomeCancelled
			}

		case recovery.StrategyBackoff:
			// Persistent rate limiting past the retry budget ends the
			// whole session as RATE_LIMITED.
			if attempt >= cfg.MaxRetryAttempts {
				return outcomeRateLimited
			}
			if !sleepCtx(ctx, decision.Delay) {
				return outcomeCancelled
			}

		case recovery.StrategySkip, recovery.StrategyQuarantine:
			if accountHealth.Recommended == domain.ActionQuarantine {
				return outcomeSkipped
			}
			// A critical non-retryable failure (dead token, empty balance)
			// affects every remaining account; abort the whole session.
			if serr.Severity == domain.SeverityCritical && !serr.Retryable {
				return outcomeAborted
			}
			return outcomeFailed

		case recovery.StrategyPauseSession:
			if !m.applyPause(ctx, sess, decision.Reason, rt) {
				return outcomeCancelled
			}
			// Resumed: keep working on the same account.

		case recovery.StrategyCancelSession:
			m.applyCancel(ctx, sess, decision.Reason)
			return outcomeCancelled
		}
	}
}

// applyPause executes a PAUSE_SESSION decision through the narrow session
// callbacks, then blocks until RESUME or cancellation. Returns false when
// the session should stop.
func (m *Manager) applyPause(
	ctx context.Context,
	sess *domain.Session,
	reason string,
	rt *runtime,
) bool {
	cb := recovery.SessionCallbacks{
		PauseSession: func(r string) error {
			next, events, err := Transition(*sess, ActionPause, time.Now())
			if err != nil {
				return err
			}
			*sess = next
			m.logEvent(ctx, sess.ID, "", "warn", "session paused: "+r)
			return m.applyEvents(ctx, sess, events)
		},
	}
	if err := cb.PauseSession(reason); err != nil {
		m.log.Error("failed to pause session", "session", sess.ID, "error", err)
		return false
	}
	return m.waitWhilePaused(ctx, sess, rt)
}

// applyCancel executes a CANCEL_SESSION decision.
func (m *Manager) applyCancel(ctx context.Context, sess *domain.Session, reason string) {
	cb := recovery.SessionCallbacks{
		CancelSession: func(r string) error {
			m.logEvent(ctx, sess.ID, "", "warn", "session cancelled: "+r)
			return nil
		},
	}
	if err := cb.CancelSession(reason); err != nil {
		m.log.Error("failed to cancel session", "session", sess.ID, "error", err)
	}
}

// waitWhilePaused blocks while the session is PAUSED. Returns false when
// the context was cancelled instead of resumed.
func (m *Manager) waitWhilePaused(
	ctx context.Context,
	sess *domain.Session,
	rt *runtime,
) bool {
	for {
		current, err := m.sessions.Get(ctx, sess.ID)
		if err != nil {
			m.log.Error("failed to read session state", "session", sess.ID, "error", err)
			return false
		}
		switch current.Status {
		case domain.SessionStatusPaused:
			select {
			case <-ctx.Done():
				return false
			case <-rt.resume:
				// Control already persisted the RUNNING transition.
				sess.Status = domain.SessionStatusRunning
			}
		case domain.SessionStatusCancelled:
			return false
		default:
			sess.Status = current.Status
			return true
		}
	}
}

func (m *Manager) finish(
	ctx context.Context,
	sess *domain.Session,
	to domain.SessionStatus,
	lastError string,
) {
	if sess.Status.Terminal() {
		return
	}
	next, events := Finish(*sess, to, lastError, time.Now())
	*sess = next
	if err := m.applyEvents(ctx, sess, events); err != nil {
		m.log.Error("failed to persist final state", "session", sess.ID, "error", err)
	}
}

// updateEstimate projects the completion time from observed throughput.
func (m *Manager) updateEstimate(sess *domain.Session, started time.Time) {
	processed := sess.Processed()
	if processed == 0 || sess.TotalAccounts == 0 {
		return
	}
	perAccount := time.Since(started) / time.Duration(processed)
	remaining := time.Duration(sess.TotalAccounts-processed) * perAccount
	eta := time.Now().Add(remaining)
	sess.EstimatedEnd = &eta
}

// applyEvents executes a transition's side-effect instructions: log events
// go to the audit log, persist events upsert the session row.
func (m *Manager) applyEvents(
	ctx context.Context,
	sess *domain.Session,
	events []Event,
) error {
	for _, e := range events {
		switch e.Kind {
		case EventLog:
			m.log.Info(e.Message, "session", sess.ID, "from", e.From, "to", e.To)
			m.logEvent(ctx, sess.ID, "", "info", e.Message)
			metrics.SessionTransitions.WithLabelValues(string(e.From), string(e.To)).Inc()
		case EventPersist:
			if err := m.sessions.Save(ctx, sess); err != nil {
				return fmt.Errorf("persist session %s: %w", sess.ID, err)
			}
		}
	}
	return nil
}

func (m *Manager) logEvent(ctx context.Context, sessionID, accountID, level, message string) {
	if m.events == nil {
		return
	}
	err := m.events.Append(ctx, storage.Event{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		AccountID: accountID,
		Level:     level,
		Message:   message,
		CreatedAt: time.Now(),
	})
	if err != nil {
		m.log.Warn("failed to append event", "session", sessionID, "error", err)
	}
}

// sleepCtx sleeps for d unless ctx is cancelled first. Returns false on
// cancellation. Zero and negative delays return immediately.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
