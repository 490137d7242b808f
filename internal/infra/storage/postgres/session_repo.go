package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/vietddude/scraperd/internal/core/domain"
)

// SessionRepo implements storage.SessionRepository using PostgreSQL.
type SessionRepo struct {
	db *DB
}

// NewSessionRepo creates a new PostgreSQL session repository.
func NewSessionRepo(db *DB) *SessionRepo {
	return &SessionRepo{db: db}
}

type sessionRow struct {
	ID                string         `db:"id"`
	SessionType       string         `db:"session_type"`
	Status            string         `db:"status"`
	TotalAccounts     int            `db:"total_accounts"`
	CompletedAccounts int            `db:"completed_accounts"`
	FailedAccounts    int            `db:"failed_accounts"`
	SkippedAccounts   int            `db:"skipped_accounts"`
	RequestUnits      int            `db:"request_units"`
	EstimatedCost     float64        `db:"estimated_cost"`
	ErrorCount        int            `db:"error_count"`
	LastError         sql.NullString `db:"last_error"`
	TriggeredBy       string         `db:"triggered_by"`
	AccountIDs        pq.StringArray `db:"account_ids"`
	StartedAt         *time.Time     `db:"started_at"`
	EndedAt           *time.Time     `db:"ended_at"`
	EstimatedEnd      *time.Time     `db:"estimated_end"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
}

func (r sessionRow) toDomain() *domain.Session {
	return &domain.Session{
		ID:                r.ID,
		Type:              domain.SessionType(r.SessionType),
		Status:            domain.SessionStatus(r.Status),
		TotalAccounts:     r.TotalAccounts,
		CompletedAccounts: r.CompletedAccounts,
		FailedAccounts:    r.FailedAccounts,
		SkippedAccounts:   r.SkippedAccounts,
		RequestUnits:      r.RequestUnits,
		EstimatedCost:     r.EstimatedCost,
		ErrorCount:        r.ErrorCount,
		LastError:         r.LastError.String,
		TriggeredBy:       r.TriggeredBy,
		AccountIDs:        []string(r.AccountIDs),
		StartedAt:         r.StartedAt,
		EndedAt:           r.EndedAt,
		EstimatedEnd:      r.EstimatedEnd,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

// Save upserts the full session row.
func (r *SessionRepo) Save(ctx context.Context, s *domain.Session) error {
	query := `
		INSERT INTO sessions (
			id, session_type, status, total_accounts, completed_accounts,
			failed_accounts, skipped_accounts, request_units, estimated_cost,
			error_count, last_error, triggered_by, account_ids,
			started_at, ended_at, estimated_end, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			total_accounts = EXCLUDED.total_accounts,
			completed_accounts = EXCLUDED.completed_accounts,
			failed_accounts = EXCLUDED.failed_accounts,
			skipped_accounts = EXCLUDED.skipped_accounts,
			request_units = EXCLUDED.request_units,
			estimated_cost = EXCLUDED.estimated_cost,
			error_count = EXCLUDED.error_count,
			last_error = EXCLUDED.last_error,
			account_ids = EXCLUDED.account_ids,
			started_at = EXCLUDED.started_at,
			ended_at = EXCLUDED.ended_at,
			estimated_end = EXCLUDED.estimated_end,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		s.ID, string(s.Type), string(s.Status),
		s.TotalAccounts, s.CompletedAccounts, s.FailedAccounts, s.SkippedAccounts,
		s.RequestUnits, s.EstimatedCost, s.ErrorCount,
		sql.NullString{String: s.LastError, Valid: s.LastError != ""},
		s.TriggeredBy, pq.StringArray(s.AccountIDs),
		s.StartedAt, s.EndedAt, s.EstimatedEnd, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Get retrieves a session by id.
func (r *SessionRepo) Get(ctx context.Context, id string) (*domain.Session, error) {
	query := `SELECT * FROM sessions WHERE id = $1`

	var row sessionRow
	err := r.db.GetContext(ctx, &row, query, id)
	if err == sql.ErrNoRows {
		return nil, storageErrNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return row.toDomain(), nil
}

// ListActive returns sessions in a running or paused status.
func (r *SessionRepo) ListActive(ctx context.Context) ([]*domain.Session, error) {
	query := `
		SELECT * FROM sessions
		WHERE status IN ('initializing', 'running', 'paused')
		ORDER BY created_at
	`
	var rows []sessionRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}

	sessions := make([]*domain.Session, 0, len(rows))
	for _, row := range rows {
		sessions = append(sessions, row.toDomain())
	}
	return sessions, nil
}

// CountActive returns the number of active sessions.
func (r *SessionRepo) CountActive(ctx context.Context) (int, error) {
	query := `
		SELECT COUNT(*) FROM sessions
		WHERE status IN ('initializing', 'running', 'paused')
	`
	var count int
	if err := r.db.GetContext(ctx, &count, query); err != nil {
		return 0, fmt.Errorf("failed to count active sessions: %w", err)
	}
	return count, nil
}
