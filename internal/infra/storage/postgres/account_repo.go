package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/vietddude/scraperd/internal/core/domain"
)

// AccountRepo implements storage.AccountRepository using PostgreSQL.
// The accounts table is an inventory projection maintained externally;
// this repo only reads it, plus the last-scraped touch after a success.
type AccountRepo struct {
	db *DB
}

// NewAccountRepo creates a new PostgreSQL account repository.
func NewAccountRepo(db *DB) *AccountRepo {
	return &AccountRepo{db: db}
}

// List returns all known accounts.
func (r *AccountRepo) List(ctx context.Context) ([]domain.Account, error) {
	query := `
		SELECT id, username, owned, last_scraped_at
		FROM accounts
		ORDER BY last_scraped_at ASC NULLS FIRST
	`
	var accounts []domain.Account
	if err := r.db.SelectContext(ctx, &accounts, query); err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

// GetByIDs returns the accounts with the given ids.
func (r *AccountRepo) GetByIDs(ctx context.Context, ids []string) ([]domain.Account, error) {
	query := `
		SELECT id, username, owned, last_scraped_at
		FROM accounts
		WHERE id = ANY($1)
	`
	var accounts []domain.Account
	if err := r.db.SelectContext(ctx, &accounts, query, pq.StringArray(ids)); err != nil {
		return nil, fmt.Errorf("failed to get accounts: %w", err)
	}
	return accounts, nil
}

// TouchLastScraped updates the last-scrape timestamp after a success.
func (r *AccountRepo) TouchLastScraped(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE accounts SET last_scraped_at = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to touch last-scraped: %w", err)
	}
	return nil
}
