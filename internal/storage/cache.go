package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/entscheid/internal/models"
)

// Cache is a TTL-bounded key/value store with hit counting. Expiration is lazy:
// expired entries are invisible to Get and Has but only removed by Cleanup.
// Get never fails for a missing key.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration, typ string) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Has(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	Cleanup(ctx context.Context) (int64, error)
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (*models.CacheStats, error)
	MostAccessed(ctx context.Context, n int) ([]models.CacheEntry, error)
}

// GetJSON reads key and decodes it into a T. An undecodable entry is deleted and
// reported as a miss.
func GetJSON[T any](ctx context.Context, c Cache, key string) (T, bool, error) {
	var zero T
	raw, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		_ = c.Delete(ctx, key)
		return zero, false, nil
	}
	return v, true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration, typ string) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cache value %s: %w", key, err)
	}
	return c.Set(ctx, key, raw, ttl, typ)
}

// SQLCache stores cache entries in the cache_entries table of the shared database.
type SQLCache struct {
	store *SQLStore
}

// NewSQLCache returns a cache backed by store. It shares the store's clock.
func NewSQLCache(store *SQLStore) *SQLCache {
	return &SQLCache{store: store}
}

var _ Cache = (*SQLCache)(nil)

// Set stores value under key. A ttl <= 0 stores an already-expired entry.
// Overwriting a key resets its hit count.
func (c *SQLCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration, typ string) error {
	if strings.TrimSpace(key) == "" {
		return models.NewValidationError("key", "is required")
	}
	now := c.store.nowMillis()
	expires := now
	if ttl > 0 {
		expires = now + ttl.Milliseconds()
	}
	_, err := c.store.exec(ctx, c.store.db,
		`INSERT INTO cache_entries (cache_key, value, cache_type, expires_at, hit_count, created_at)
		 VALUES (?, ?, ?, ?, 0, ?)
		 ON CONFLICT (cache_key) DO UPDATE SET
			value = excluded.value,
			cache_type = excluded.cache_type,
			expires_at = excluded.expires_at,
			hit_count = 0,
			created_at = excluded.created_at`,
		key, string(value), typ, expires, now)
	if err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Get returns the value of a live entry and increments its hit count in the same statement.
func (c *SQLCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value string
	err := c.store.queryRow(ctx, c.store.db,
		`UPDATE cache_entries SET hit_count = hit_count + 1
		 WHERE cache_key = ? AND expires_at > ?
		 RETURNING value`, key, c.store.nowMillis()).Scan(&value)
	if err != nil {
		if isNoRows(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache get %s: %w", key, err)
	}
	return []byte(value), true, nil
}

// Has reports whether key holds a live entry. It does not count as a hit.
func (c *SQLCache) Has(ctx context.Context, key string) (bool, error) {
	var one int
	err := c.store.queryRow(ctx, c.store.db,
		`SELECT 1 FROM cache_entries WHERE cache_key = ? AND expires_at > ?`,
		key, c.store.nowMillis()).Scan(&one)
	if isNoRows(err) {
		return false, nil
	}
	return err == nil, err
}

// Delete removes key. Deleting a missing key is not an error.
func (c *SQLCache) Delete(ctx context.Context, key string) error {
	_, err := c.store.exec(ctx, c.store.db, `DELETE FROM cache_entries WHERE cache_key = ?`, key)
	return err
}

// Cleanup physically removes expired entries and returns how many were removed.
func (c *SQLCache) Cleanup(ctx context.Context) (int64, error) {
	res, err := c.store.exec(ctx, c.store.db,
		`DELETE FROM cache_entries WHERE expires_at <= ?`, c.store.nowMillis())
	if err != nil {
		return 0, fmt.Errorf("cache cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes every entry.
func (c *SQLCache) Clear(ctx context.Context) error {
	_, err := c.store.exec(ctx, c.store.db, `DELETE FROM cache_entries`)
	return err
}

// Stats counts entries in total, expired, and per type.
func (c *SQLCache) Stats(ctx context.Context) (*models.CacheStats, error) {
	stats := &models.CacheStats{ByType: map[string]int64{}}
	now := c.store.nowMillis()
	rows, err := c.store.query(ctx, c.store.db,
		`SELECT cache_type, COUNT(*), SUM(CASE WHEN expires_at <= ? THEN 1 ELSE 0 END)
		 FROM cache_entries GROUP BY cache_type`, now)
	if err != nil {
		return nil, fmt.Errorf("cache stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var typ string
		var total, expired int64
		if err := rows.Scan(&typ, &total, &expired); err != nil {
			return nil, err
		}
		stats.ByType[typ] = total
		stats.Total += total
		stats.Expired += expired
	}
	return stats, rows.Err()
}

// MostAccessed returns up to n entries ordered by hit count, without their values.
func (c *SQLCache) MostAccessed(ctx context.Context, n int) ([]models.CacheEntry, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := c.store.query(ctx, c.store.db,
		`SELECT cache_key, cache_type, expires_at, hit_count, created_at FROM cache_entries
		 ORDER BY hit_count DESC, cache_key ASC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("cache most accessed: %w", err)
	}
	defer rows.Close()
	var out []models.CacheEntry
	for rows.Next() {
		var e models.CacheEntry
		var expires, created int64
		if err := rows.Scan(&e.Key, &e.Type, &expires, &e.HitCount, &created); err != nil {
			return nil, err
		}
		e.ExpiresAt = fromMillis(expires)
		e.CreatedAt = fromMillis(created)
		out = append(out, e)
	}
	return out, rows.Err()
}
