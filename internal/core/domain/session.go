package domain

import "time"

// SessionType identifies what kind of data a session collects.
type SessionType string

const (
	SessionTypeMetrics   SessionType = "metrics"
	SessionTypeFollowers SessionType = "followers"
	SessionTypeContent   SessionType = "content"
	SessionTypeTrend     SessionType = "trend"
)

// SessionStatus is the lifecycle state of a scraping session.
type SessionStatus string

const (
	SessionStatusPending      SessionStatus = "pending"
	SessionStatusScheduled    SessionStatus = "scheduled"
	SessionStatusInitializing SessionStatus = "initializing"
	SessionStatusRunning      SessionStatus = "running"
	SessionStatusPaused       SessionStatus = "paused"
	SessionStatusCompleted    SessionStatus = "completed"
	SessionStatusFailed       SessionStatus = "failed"
	SessionStatusCancelled    SessionStatus = "cancelled"
	SessionStatusRateLimited  SessionStatus = "rate_limited"
)

// Terminal reports whether a status freezes the session counts.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionStatusCompleted, SessionStatusFailed, SessionStatusCancelled:
		return true
	}
	return false
}

// Session is the durable state of one scraping run.
type Session struct {
	ID                string        `json:"id" db:"id"`
	Type              SessionType   `json:"type" db:"session_type"`
	Status            SessionStatus `json:"status" db:"status"`
	TotalAccounts     int           `json:"total_accounts" db:"total_accounts"`
	CompletedAccounts int           `json:"completed_accounts" db:"completed_accounts"`
	FailedAccounts    int           `json:"failed_accounts" db:"failed_accounts"`
	SkippedAccounts   int           `json:"skipped_accounts" db:"skipped_accounts"`
	RequestUnits      int           `json:"request_units" db:"request_units"`
	EstimatedCost     float64       `json:"estimated_cost" db:"estimated_cost"`
	ErrorCount        int           `json:"error_count" db:"error_count"`
	LastError         string        `json:"last_error,omitempty" db:"last_error"`
	TriggeredBy       string        `json:"triggered_by" db:"triggered_by"`
	AccountIDs        []string      `json:"account_ids,omitempty" db:"-"`
	StartedAt         *time.Time    `json:"started_at,omitempty" db:"started_at"`
	EndedAt           *time.Time    `json:"ended_at,omitempty" db:"ended_at"`
	EstimatedEnd      *time.Time    `json:"estimated_end,omitempty" db:"estimated_end"`
	CreatedAt         time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at" db:"updated_at"`
}

// Processed returns how many accounts have reached a final per-account outcome.
func (s *Session) Processed() int {
	return s.CompletedAccounts + s.FailedAccounts + s.SkippedAccounts
}

// Progress returns the completion percentage, rounded and capped at 100.
func (s *Session) Progress() int {
	if s.TotalAccounts <= 0 {
		return 0
	}
	pct := int(float64(s.Processed())/float64(s.TotalAccounts)*100 + 0.5)
	if pct > 100 {
		pct = 100
	}
	return pct
}
