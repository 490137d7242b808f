package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vietddude/scraperd/internal/infra/storage"
)

// EventRepo implements storage.EventLogRepository using PostgreSQL.
type EventRepo struct {
	db *DB
}

// NewEventRepo creates a new PostgreSQL event log repository.
func NewEventRepo(db *DB) *EventRepo {
	return &EventRepo{db: db}
}

// Append writes one event. The log is append-only; nothing updates rows.
func (r *EventRepo) Append(ctx context.Context, e storage.Event) error {
	var details []byte
	if e.Details != nil {
		var err error
		details, err = json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal event details: %w", err)
		}
	}

	query := `
		INSERT INTO scrape_events (id, session_id, account_id, level, message, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.SessionID,
		sql.NullString{String: e.AccountID, Valid: e.AccountID != ""},
		e.Level, e.Message, details, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// ListBySession returns a session's events, oldest first.
func (r *EventRepo) ListBySession(
	ctx context.Context,
	sessionID string,
	limit int,
) ([]storage.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, session_id, account_id, level, message, details, created_at
		FROM scrape_events
		WHERE session_id = $1
		ORDER BY created_at ASC
		LIMIT $2
	`

	var rows []struct {
		ID        string         `db:"id"`
		SessionID string         `db:"session_id"`
		AccountID sql.NullString `db:"account_id"`
		Level     string         `db:"level"`
		Message   string         `db:"message"`
		Details   []byte         `db:"details"`
		CreatedAt time.Time      `db:"created_at"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, sessionID, limit); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	events := make([]storage.Event, 0, len(rows))
	for _, row := range rows {
		e := storage.Event{
			ID:        row.ID,
			SessionID: row.SessionID,
			AccountID: row.AccountID.String,
			Level:     row.Level,
			Message:   row.Message,
			CreatedAt: row.CreatedAt,
		}
		if len(row.Details) > 0 {
			_ = json.Unmarshal(row.Details, &e.Details)
		}
		events = append(events, e)
	}
	return events, nil
}
