package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/hyperjump/entscheid/internal/config"
	"github.com/hyperjump/entscheid/internal/models"
)

// RedisCache keeps one hash per entry plus two sorted sets indexing entries by
// expiry and by hit count. Entries carry no Redis TTL: expiry is evaluated lazily on
// read and enforced by Cleanup, matching the SQL cache.
type RedisCache struct {
	rdb    *goredis.Client
	prefix string
	now    func() time.Time
}

var _ Cache = (*RedisCache)(nil)

// getScript returns the value of a live entry and bumps its hit counters atomically.
var getScript = goredis.NewScript(`
local v = redis.call('HMGET', KEYS[1], 'value', 'expires_at')
if not v[1] then return false end
if tonumber(v[2]) <= tonumber(ARGV[1]) then return false end
redis.call('HINCRBY', KEYS[1], 'hit_count', 1)
redis.call('ZINCRBY', KEYS[2], 1, ARGV[2])
return v[1]
`)

// NewRedisCache connects to the Redis server in cfg and verifies it with a ping.
func NewRedisCache(ctx context.Context, cfg config.CacheConfig) (*RedisCache, error) {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisCache{rdb: rdb, prefix: cfg.KeyPrefix, now: time.Now}, nil
}

// SetClock replaces the time source. Used by tests.
func (c *RedisCache) SetClock(now func() time.Time) { c.now = now }

// Close closes the Redis client.
func (c *RedisCache) Close() error { return c.rdb.Close() }

func (c *RedisCache) entryKey(key string) string { return c.prefix + "entry:" + key }
func (c *RedisCache) expiryKey() string          { return c.prefix + "expiry" }
func (c *RedisCache) hitsKey() string            { return c.prefix + "hits" }

func (c *RedisCache) nowMillis() int64 { return c.now().UTC().UnixMilli() }

// Set stores value under key. A ttl <= 0 stores an already-expired entry.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration, typ string) error {
	if strings.TrimSpace(key) == "" {
		return models.NewValidationError("key", "is required")
	}
	now := c.nowMillis()
	expires := now
	if ttl > 0 {
		expires = now + ttl.Milliseconds()
	}
	_, err := c.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Del(ctx, c.entryKey(key))
		p.HSet(ctx, c.entryKey(key), map[string]any{
			"value":      value,
			"type":       typ,
			"expires_at": expires,
			"hit_count":  0,
			"created_at": now,
		})
		p.ZAdd(ctx, c.expiryKey(), goredis.Z{Score: float64(expires), Member: key})
		p.ZAdd(ctx, c.hitsKey(), goredis.Z{Score: 0, Member: key})
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Get returns the value of a live entry and increments its hit count.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := getScript.Run(ctx, c.rdb, []string{c.entryKey(key), c.hitsKey()}, c.nowMillis(), key).Text()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get %s: %w", key, err)
	}
	return []byte(v), true, nil
}

// Has reports whether key holds a live entry.
func (c *RedisCache) Has(ctx context.Context, key string) (bool, error) {
	v, err := c.rdb.HGet(ctx, c.entryKey(key), "expires_at").Int64()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v > c.nowMillis(), nil
}

// Delete removes key. Deleting a missing key is not an error.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	_, err := c.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		c.remove(ctx, p, key)
		return nil
	})
	return err
}

func (c *RedisCache) remove(ctx context.Context, p goredis.Pipeliner, keys ...string) {
	if len(keys) == 0 {
		return
	}
	entries := make([]string, len(keys))
	members := make([]any, len(keys))
	for i, k := range keys {
		entries[i] = c.entryKey(k)
		members[i] = k
	}
	p.Del(ctx, entries...)
	p.ZRem(ctx, c.expiryKey(), members...)
	p.ZRem(ctx, c.hitsKey(), members...)
}

// Cleanup removes entries whose expiry has passed.
func (c *RedisCache) Cleanup(ctx context.Context) (int64, error) {
	keys, err := c.rdb.ZRangeByScore(ctx, c.expiryKey(), &goredis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(c.nowMillis(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("cache cleanup: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if _, err := c.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		c.remove(ctx, p, keys...)
		return nil
	}); err != nil {
		return 0, fmt.Errorf("cache cleanup: %w", err)
	}
	return int64(len(keys)), nil
}

// Clear removes every entry under the prefix.
func (c *RedisCache) Clear(ctx context.Context) error {
	keys, err := c.rdb.ZRange(ctx, c.expiryKey(), 0, -1).Result()
	if err != nil {
		return err
	}
	_, err = c.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		c.remove(ctx, p, keys...)
		p.Del(ctx, c.expiryKey(), c.hitsKey())
		return nil
	})
	return err
}

// Stats counts entries in total, expired, and per type.
func (c *RedisCache) Stats(ctx context.Context) (*models.CacheStats, error) {
	keys, err := c.rdb.ZRange(ctx, c.expiryKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("cache stats: %w", err)
	}
	expired, err := c.rdb.ZCount(ctx, c.expiryKey(), "-inf", strconv.FormatInt(c.nowMillis(), 10)).Result()
	if err != nil {
		return nil, fmt.Errorf("cache stats: %w", err)
	}
	stats := &models.CacheStats{Total: int64(len(keys)), Expired: expired, ByType: map[string]int64{}}
	if len(keys) == 0 {
		return stats, nil
	}
	cmds, err := c.rdb.Pipelined(ctx, func(p goredis.Pipeliner) error {
		for _, k := range keys {
			p.HGet(ctx, c.entryKey(k), "type")
		}
		return nil
	})
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("cache stats: %w", err)
	}
	for _, cmd := range cmds {
		if typ, err := cmd.(*goredis.StringCmd).Result(); err == nil {
			stats.ByType[typ]++
		}
	}
	return stats, nil
}

// MostAccessed returns up to n entries ordered by hit count, without their values.
func (c *RedisCache) MostAccessed(ctx context.Context, n int) ([]models.CacheEntry, error) {
	if n <= 0 {
		return nil, nil
	}
	top, err := c.rdb.ZRevRangeWithScores(ctx, c.hitsKey(), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("cache most accessed: %w", err)
	}
	out := make([]models.CacheEntry, 0, len(top))
	for _, z := range top {
		key, _ := z.Member.(string)
		fields, err := c.rdb.HMGet(ctx, c.entryKey(key), "type", "expires_at", "created_at").Result()
		if err != nil {
			return nil, err
		}
		e := models.CacheEntry{Key: key, HitCount: int64(z.Score)}
		if s, ok := fields[0].(string); ok {
			e.Type = s
		}
		if s, ok := fields[1].(string); ok {
			ms, _ := strconv.ParseInt(s, 10, 64)
			e.ExpiresAt = fromMillis(ms)
		}
		if s, ok := fields[2].(string); ok {
			ms, _ := strconv.ParseInt(s, 10, 64)
			e.CreatedAt = fromMillis(ms)
		}
		out = append(out, e)
	}
	return out, nil
}
