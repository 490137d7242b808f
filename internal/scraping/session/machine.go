// Package session owns the scraping session lifecycle: a pure state
// machine plus the Manager that drives sessions against it.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/scraperd/internal/core/domain"
)

// Action is an operator-visible lifecycle command.
type Action string

const (
	ActionStart  Action = "START"
	ActionPause  Action = "PAUSE"
	ActionResume Action = "RESUME"
	ActionStop   Action = "STOP"
	ActionRetry  Action = "RETRY"
)

// ErrIllegalTransition is returned when an action is not allowed for the
// session's current status. The state is left unchanged.
var ErrIllegalTransition = errors.New("illegal session transition")

// EventKind tags the side-effect instructions a transition emits.
type EventKind string

const (
	EventLog     EventKind = "log"
	EventPersist EventKind = "persist"
)

// Event is a side-effect instruction. The machine stays pure; the Manager
// executes these against the log sink and session store.
type Event struct {
	Kind    EventKind
	Message string
	From    domain.SessionStatus
	To      domain.SessionStatus
}

// allowed is the legal action table per status. Statuses absent from the
// map (COMPLETED) accept nothing.
var allowed = map[domain.SessionStatus][]Action{
	domain.SessionStatusPending:      {ActionStart},
	domain.SessionStatusScheduled:    {ActionStart},
	domain.SessionStatusInitializing: {ActionStop},
	domain.SessionStatusRunning:      {ActionPause, ActionStop},
	domain.SessionStatusPaused:       {ActionResume, ActionStop},
	domain.SessionStatusFailed:       {ActionRetry, ActionStart},
	domain.SessionStatusCancelled:    {ActionRetry, ActionStart},
	domain.SessionStatusRateLimited:  {ActionRetry, ActionStart},
}

func actionAllowed(status domain.SessionStatus, action Action) bool {
	for _, a := range allowed[status] {
		if a == action {
			return true
		}
	}
	return false
}

// Transition applies an action to a session and returns the full next
// state plus side-effect instructions. Illegal actions return
// ErrIllegalTransition with the state unchanged.
func Transition(s domain.Session, action Action, now time.Time) (domain.Session, []Event, error) {
	if !actionAllowed(s.Status, action) {
		return s, nil, fmt.Errorf("%w: %s not allowed in status %s",
			ErrIllegalTransition, action, s.Status)
	}

	from := s.Status
	next := s

	switch action {
	case ActionStart:
		next.Status = domain.SessionStatusInitializing
		next.StartedAt = &now
		next.EndedAt = nil
		next.CompletedAccounts = 0
		next.FailedAccounts = 0
		next.SkippedAccounts = 0

	case ActionPause:
		next.Status = domain.SessionStatusPaused

	case ActionResume:
		next.Status = domain.SessionStatusRunning

	case ActionStop:
		next.Status = domain.SessionStatusCancelled
		next.EndedAt = &now

	case ActionRetry:
		next.Status = domain.SessionStatusPending
		next.ErrorCount = 0
		next.LastError = ""
		next.StartedAt = nil
		next.EndedAt = nil
		next.EstimatedEnd = nil
		next.CompletedAccounts = 0
		next.FailedAccounts = 0
		next.SkippedAccounts = 0
	}
	next.UpdatedAt = now

	events := []Event{
		{
			Kind:    EventLog,
			Message: fmt.Sprintf("session %s: %s (%s -> %s)", s.ID, action, from, next.Status),
			From:    from,
			To:      next.Status,
		},
		{Kind: EventPersist, From: from, To: next.Status},
	}
	return next, events, nil
}

// MarkRunning moves an INITIALIZING session into RUNNING. Internal step,
// not an operator action.
func MarkRunning(s domain.Session, now time.Time) (domain.Session, []Event) {
	from := s.Status
	s.Status = domain.SessionStatusRunning
	s.UpdatedAt = now
	return s, []Event{
		{
			Kind:    EventLog,
			Message: fmt.Sprintf("session %s: running (%s -> %s)", s.ID, from, s.Status),
			From:    from,
			To:      s.Status,
		},
		{Kind: EventPersist, From: from, To: s.Status},
	}
}

// Finish moves a session into a terminal or rate-limited status and stamps
// the end time.
func Finish(s domain.Session, to domain.SessionStatus, lastError string, now time.Time) (domain.Session, []Event) {
	from := s.Status
	s.Status = to
	s.EndedAt = &now
	s.UpdatedAt = now
	if lastError != "" {
		s.LastError = lastError
	}
	return s, []Event{
		{
			Kind:    EventLog,
			Message: fmt.Sprintf("session %s: finished (%s -> %s)", s.ID, from, to),
			From:    from,
			To:      to,
		},
		{Kind: EventPersist, From: from, To: to},
	}
}

// ApplyProgress recomputes derived progress and auto-completes once every
// account has an outcome. Counts are never decremented here; a RETRY reset
// is the only way back.
func ApplyProgress(s domain.Session, now time.Time) (domain.Session, []Event) {
	if s.TotalAccounts > 0 && s.Processed() >= s.TotalAccounts &&
		s.Status == domain.SessionStatusRunning {
		return Finish(s, domain.SessionStatusCompleted, "", now)
	}
	s.UpdatedAt = now
	return s, []Event{{Kind: EventPersist, From: s.Status, To: s.Status}}
}
