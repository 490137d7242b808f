package domain

import "time"

// Account is a read-only projection of the external account inventory.
type Account struct {
	ID            string     `json:"id" db:"id"`
	Username      string     `json:"username" db:"username"`
	Owned         bool       `json:"owned" db:"owned"`
	LastScrapedAt *time.Time `json:"last_scraped_at,omitempty" db:"last_scraped_at"`
}
