// Package cache keeps the results of slow lookups, such as weather reports
// and fetched pages, in the bot's database so they survive restarts.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/germanamz/egbert/pkg/store"
)

// Cache is a persistent key-value store with per-entry expiry. It is safe
// for concurrent use.
type Cache struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a Cache backed by db.
func New(db *store.DB) *Cache {
	return &Cache{db: db.SQL(), now: time.Now}
}

// SetNowFunc overrides the clock. For testing.
func (c *Cache) SetNowFunc(fn func() time.Time) { c.now = fn }

// Store saves value under key as JSON. A ttl of zero or less keeps the entry
// until it is overwritten.
func (c *Cache) Store(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode %q: %w", key, err)
	}

	var expires int64
	if ttl > 0 {
		expires = c.now().Add(ttl).UnixMilli()
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO cache (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, string(data), expires)
	if err != nil {
		return fmt.Errorf("cache: store %q: %w", key, err)
	}
	return nil
}

// Retrieve decodes the entry for key into dest. It reports false when the key
// is missing or expired. Expired entries are purged first.
func (c *Cache) Retrieve(ctx context.Context, key string, dest any) (bool, error) {
	if err := c.Purge(ctx); err != nil {
		return false, err
	}

	var data string
	err := c.db.QueryRowContext(ctx, `SELECT value FROM cache WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache: retrieve %q: %w", key, err)
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return false, fmt.Errorf("cache: decode %q: %w", key, err)
	}
	return true, nil
}

// Purge deletes every expired entry.
func (c *Cache) Purge(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx,
		`DELETE FROM cache WHERE expires_at != 0 AND expires_at <= ?`, c.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("cache: purge: %w", err)
	}
	return nil
}
