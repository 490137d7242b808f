package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/scraperd/internal/core/domain"
)

var (
	// ErrSessionNotFound is returned when a session doesn't exist
	ErrSessionNotFound = errors.New("session not found")

	// ErrAccountNotFound is returned when an account doesn't exist
	ErrAccountNotFound = errors.New("account not found")
)

// Event is one append-only entry in the audit log.
type Event struct {
	ID        string         `db:"id"`
	SessionID string         `db:"session_id"`
	AccountID string         `db:"account_id"`
	Level     string         `db:"level"`
	Message   string         `db:"message"`
	Details   map[string]any `db:"-"`
	CreatedAt time.Time      `db:"created_at"`
}

// SessionRepository handles session row persistence
type SessionRepository interface {
	// Save upserts the full session row
	Save(ctx context.Context, s *domain.Session) error

	// Get retrieves a session by id
	Get(ctx context.Context, id string) (*domain.Session, error)

	// ListActive returns sessions in a running or paused status
	ListActive(ctx context.Context) ([]*domain.Session, error)

	// CountActive returns the number of active sessions
	CountActive(ctx context.Context) (int, error)
}

// AccountRepository reads the external account inventory projection
type AccountRepository interface {
	// List returns all known accounts
	List(ctx context.Context) ([]domain.Account, error)

	// GetByIDs returns the accounts with the given ids
	GetByIDs(ctx context.Context, ids []string) ([]domain.Account, error)

	// TouchLastScraped updates the last-scrape timestamp after a success
	TouchLastScraped(ctx context.Context, id string, at time.Time) error
}

// EventLogRepository appends to the audit event log
type EventLogRepository interface {
	// Append writes one event
	Append(ctx context.Context, e Event) error

	// ListBySession returns a session's events, oldest first
	ListBySession(ctx context.Context, sessionID string, limit int) ([]Event, error)
}
