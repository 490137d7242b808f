// Package redis shares quarantine and freshness state across scraperd
// processes.
package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// quarantineTTL keeps a quarantine from becoming a permanent ban; the
// health monitor re-evaluates the account once the key expires.
const quarantineTTL = 24 * time.Hour

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// Client wraps Redis operations for cross-process scraping state.
type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Key helpers
func quarantineKey(accountID string) string {
	return fmt.Sprintf("quarantine:%s", accountID)
}

func lastScrapedKey(accountID string) string {
	return fmt.Sprintf("last_scraped:%s", accountID)
}

// Quarantine marks an account as quarantined for the TTL window.
func (c *Client) Quarantine(ctx context.Context, accountID, reason string) error {
	if err := c.rdb.Set(ctx, quarantineKey(accountID), reason, quarantineTTL).Err(); err != nil {
		return fmt.Errorf("failed to quarantine account %s: %w", accountID, err)
	}
	return nil
}

// IsQuarantined reports whether the account is currently quarantined.
func (c *Client) IsQuarantined(ctx context.Context, accountID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, quarantineKey(accountID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check quarantine: %w", err)
	}
	return n > 0, nil
}

// Release lifts a quarantine early.
func (c *Client) Release(ctx context.Context, accountID string) error {
	return c.rdb.Del(ctx, quarantineKey(accountID)).Err()
}

// TouchLastScraped records when an account was last scraped, for freshness
// checks by other processes.
func (c *Client) TouchLastScraped(ctx context.Context, accountID string, at time.Time) error {
	return c.rdb.Set(ctx, lastScrapedKey(accountID), at.Unix(), 0).Err()
}

// LastScraped returns the last recorded scrape time, or zero when unknown.
func (c *Client) LastScraped(ctx context.Context, accountID string) (time.Time, error) {
	ts, err := c.rdb.Get(ctx, lastScrapedKey(accountID)).Int64()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read last-scraped: %w", err)
	}
	return time.Unix(ts, 0), nil
}

// MemoryQuarantine is an in-process Quarantiner for tests and for
// deployments without Redis.
type MemoryQuarantine struct {
	mu   sync.RWMutex
	keys map[string]time.Time
}

// NewMemoryQuarantine creates an empty in-memory quarantine set.
func NewMemoryQuarantine() *MemoryQuarantine {
	return &MemoryQuarantine{keys: make(map[string]time.Time)}
}

// Quarantine marks an account as quarantined.
func (m *MemoryQuarantine) Quarantine(_ context.Context, accountID, _ string) error {
	m.mu.Lock()
	m.keys[accountID] = time.Now().Add(quarantineTTL)
	m.mu.Unlock()
	return nil
}

// IsQuarantined reports whether the account's quarantine is still active.
func (m *MemoryQuarantine) IsQuarantined(_ context.Context, accountID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	until, ok := m.keys[accountID]
	return ok && time.Now().Before(until), nil
}
