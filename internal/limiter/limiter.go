// Package limiter provides windowed attempt counting for abuse protection.
// The state is an injected component with explicit TTLs, not a module-level
// singleton, so a shared store can back it when multi-worker consistency is
// needed: redis when configured, a bounded in-memory map otherwise, with
// automatic failover between the two.
package limiter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter answers whether another attempt under key is allowed within the
// rolling window.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RedisLimiter counts attempts in redis with the window as TTL.
type RedisLimiter struct {
	rdb *redis.Client
}

// NewRedisLimiter wraps an existing client.
func NewRedisLimiter(rdb *redis.Client) *RedisLimiter {
	return &RedisLimiter{rdb: rdb}
}

// Allow implements Limiter.
func (r *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	full := "limiter:" + key
	count, err := r.rdb.Incr(ctx, full).Result()
	if err != nil {
		return false, fmt.Errorf("incr %s: %w", key, err)
	}
	if count == 1 {
		if err := r.rdb.Expire(ctx, full, window).Err(); err != nil {
			return false, fmt.Errorf("expire %s: %w", key, err)
		}
	}
	return count <= int64(limit), nil
}

// MemoryLimiter is the process-local fallback: a bounded time-indexed map.
// Expired windows are evicted on access; when the map outgrows maxEntries a
// full sweep removes every expired entry.
type MemoryLimiter struct {
	mu         sync.Mutex
	entries    map[string]*window
	maxEntries int
}

type window struct {
	count     int
	startedAt time.Time
	ttl       time.Duration
}

// NewMemoryLimiter builds the fallback. maxEntries bounds memory; a
// non-positive value uses a sane default.
func NewMemoryLimiter(maxEntries int) *MemoryLimiter {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &MemoryLimiter{
		entries:    make(map[string]*window),
		maxEntries: maxEntries,
	}
}

// Allow implements Limiter.
func (m *MemoryLimiter) Allow(_ context.Context, key string, limit int, ttl time.Duration) (bool, error) {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.entries[key]
	if !ok || now.Sub(w.startedAt) >= w.ttl {
		if len(m.entries) >= m.maxEntries {
			m.sweep(now)
		}
		m.entries[key] = &window{count: 1, startedAt: now, ttl: ttl}
		return limit >= 1, nil
	}
	w.count++
	return w.count <= limit, nil
}

// sweep removes expired windows; callers hold the lock.
func (m *MemoryLimiter) sweep(now time.Time) {
	for k, w := range m.entries {
		if now.Sub(w.startedAt) >= w.ttl {
			delete(m.entries, k)
		}
	}
}
