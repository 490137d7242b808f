// Package memory provides in-process storage implementations for tests and
// deployments without a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/scraperd/internal/core/domain"
	"github.com/vietddude/scraperd/internal/infra/storage"
)

// Storage backs all memory repositories.
type Storage struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
	accounts map[string]domain.Account
	events   []storage.Event
}

// NewStorage creates empty in-memory storage.
func NewStorage() *Storage {
	return &Storage{
		sessions: make(map[string]domain.Session),
		accounts: make(map[string]domain.Account),
	}
}

// SessionRepo implements storage.SessionRepository in memory.
type SessionRepo struct{ s *Storage }

// NewSessionRepo creates a memory session repository.
func NewSessionRepo(s *Storage) *SessionRepo { return &SessionRepo{s: s} }

// Save upserts the session.
func (r *SessionRepo) Save(_ context.Context, sess *domain.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *sess
	cp.AccountIDs = append([]string(nil), sess.AccountIDs...)
	r.s.sessions[sess.ID] = cp
	return nil
}

// Get retrieves a session by id.
func (r *SessionRepo) Get(_ context.Context, id string) (*domain.Session, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	sess, ok := r.s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrSessionNotFound, id)
	}
	cp := sess
	cp.AccountIDs = append([]string(nil), sess.AccountIDs...)
	return &cp, nil
}

// ListActive returns sessions in an active status, oldest first.
func (r *SessionRepo) ListActive(_ context.Context) ([]*domain.Session, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*domain.Session
	for _, sess := range r.s.sessions {
		if active(sess.Status) {
			cp := sess
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// CountActive returns the number of active sessions.
func (r *SessionRepo) CountActive(_ context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	count := 0
	for _, sess := range r.s.sessions {
		if active(sess.Status) {
			count++
		}
	}
	return count, nil
}

func active(s domain.SessionStatus) bool {
	switch s {
	case domain.SessionStatusInitializing, domain.SessionStatusRunning, domain.SessionStatusPaused:
		return true
	}
	return false
}

// AccountRepo implements storage.AccountRepository in memory.
type AccountRepo struct{ s *Storage }

// NewAccountRepo creates a memory account repository.
func NewAccountRepo(s *Storage) *AccountRepo { return &AccountRepo{s: s} }

// Seed inserts accounts for tests.
func (r *AccountRepo) Seed(accounts ...domain.Account) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range accounts {
		r.s.accounts[a.ID] = a
	}
}

// List returns all accounts, least recently scraped first.
func (r *AccountRepo) List(_ context.Context) ([]domain.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]domain.Account, 0, len(r.s.accounts))
	for _, a := range r.s.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].LastScrapedAt, out[j].LastScrapedAt
		if ti == nil {
			return true
		}
		if tj == nil {
			return false
		}
		return ti.Before(*tj)
	})
	return out, nil
}

// GetByIDs returns the accounts with the given ids.
func (r *AccountRepo) GetByIDs(_ context.Context, ids []string) ([]domain.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Account
	for _, id := range ids {
		if a, ok := r.s.accounts[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

// TouchLastScraped updates the last-scrape timestamp.
func (r *AccountRepo) TouchLastScraped(_ context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return fmt.Errorf("%w: %s", storage.ErrAccountNotFound, id)
	}
	a.LastScrapedAt = &at
	r.s.accounts[id] = a
	return nil
}

// EventRepo implements storage.EventLogRepository in memory.
type EventRepo struct{ s *Storage }

// NewEventRepo creates a memory event log repository.
func NewEventRepo(s *Storage) *EventRepo { return &EventRepo{s: s} }

// Append writes one event.
func (r *EventRepo) Append(_ context.Context, e storage.Event) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.events = append(r.s.events, e)
	return nil
}

// ListBySession returns a session's events, oldest first.
func (r *EventRepo) ListBySession(
	_ context.Context,
	sessionID string,
	limit int,
) ([]storage.Event, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []storage.Event
	for _, e := range r.s.events {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
