package shared

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// ErrRateLimited is returned when a key has used up its window
var ErrRateLimited = NewServiceError(ErrorCategoryAbuse, "RATE_LIMIT",
	"too many requests, try again later", "RateLimiter", "Check", false, nil)

// RateLimitDecision is the outcome of a single window check
type RateLimitDecision struct {
	Allowed bool      `json:"allowed"`
	Count   int       `json:"count"`
	ResetAt time.Time `json:"reset_at"`
}

// RateLimiter decides whether another request for key fits in the current window
type RateLimiter interface {
	Check(ctx context.Context, key string) (RateLimitDecision, error)
}

// WindowStore holds fixed-expiry counters. A window opens on the first hit
// and every later hit either increments it or is refused once max is reached.
type WindowStore interface {
	Hit(ctx context.Context, key string, max int, window time.Duration) (RateLimitDecision, error)
}

// SlidingWindowLimiter applies the same window algorithm on top of any store
type SlidingWindowLimiter struct {
	store  WindowStore
	max    int
	window time.Duration
}

// NewSlidingWindowLimiter creates a limiter allowing max hits per window
func NewSlidingWindowLimiter(store WindowStore, max int, window time.Duration) *SlidingWindowLimiter {
	if max <= 0 {
		max = 5
	}
	if window <= 0 {
		window = 10 * time.Minute
	}
	return &SlidingWindowLimiter{store: store, max: max, window: window}
}

// Check records a hit for key and reports whether it was allowed
func (l *SlidingWindowLimiter) Check(ctx context.Context, key string) (RateLimitDecision, error) {
	decision, err := l.store.Hit(ctx, key, l.max, l.window)
	if err != nil {
		return RateLimitDecision{}, WrapError(err, ErrorCategoryNetwork, "RATE_LIMIT_STORE", "RateLimiter", "Check", true)
	}

	if !decision.Allowed {
		logrus.WithFields(logrus.Fields{
			"component": "RateLimiter",
			"key":       key,
			"count":     decision.Count,
			"max":       l.max,
			"reset_at":  decision.ResetAt,
		}).Debug("Rate limit window exhausted")
	}

	return decision, nil
}

// Max returns the configured number of hits per window
func (l *SlidingWindowLimiter) Max() int {
	return l.max
}

// Window returns the configured window length
func (l *SlidingWindowLimiter) Window() time.Duration {
	return l.window
}

type windowEntry struct {
	count     int
	expiresAt time.Time
}

// MemoryWindowStore keeps counters in a process-local map
type MemoryWindowStore struct {
	mutex   sync.Mutex
	entries map[string]*windowEntry
	now     func() time.Time
}

// NewMemoryWindowStore creates an empty in-process store
func NewMemoryWindowStore() *MemoryWindowStore {
	return &MemoryWindowStore{
		entries: make(map[string]*windowEntry),
		now:     time.Now,
	}
}

// WithClock replaces the time source, used by tests to move past a window
func (s *MemoryWindowStore) WithClock(now func() time.Time) *MemoryWindowStore {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.now = now
	return s
}

// Hit implements WindowStore
func (s *MemoryWindowStore) Hit(_ context.Context, key string, max int, window time.Duration) (RateLimitDecision, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := s.now()
	entry, exists := s.entries[key]
	if !exists || !now.Before(entry.expiresAt) {
		entry = &windowEntry{count: 1, expiresAt: now.Add(window)}
		s.entries[key] = entry
		return RateLimitDecision{Allowed: true, Count: 1, ResetAt: entry.expiresAt}, nil
	}

	if entry.count >= max {
		return RateLimitDecision{Allowed: false, Count: entry.count, ResetAt: entry.expiresAt}, nil
	}

	entry.count++
	return RateLimitDecision{Allowed: true, Count: entry.count, ResetAt: entry.expiresAt}, nil
}

// Sweep drops expired windows and returns how many were removed
func (s *MemoryWindowStore) Sweep() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := s.now()
	removed := 0
	for key, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys
func (s *MemoryWindowStore) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.entries)
}

// hitScript opens, increments or refuses a window atomically.
// Returns {allowed, count, pttl}.
var hitScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
local max = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
if not current then
  redis.call('SET', KEYS[1], 1, 'PX', window)
  return {1, 1, window}
end
local count = tonumber(current)
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], window)
  ttl = window
end
if count >= max then
  return {0, count, ttl}
end
count = redis.call('INCR', KEYS[1])
return {1, count, ttl}
`)

// RedisWindowStore shares counters between replicas through Redis
type RedisWindowStore struct {
	client *redis.Client
	prefix string
}

// NewRedisWindowStore creates a store whose keys are namespaced by prefix
func NewRedisWindowStore(client *redis.Client, prefix string) *RedisWindowStore {
	if prefix == "" {
		prefix = "ratelimit:"
	}
	return &RedisWindowStore{client: client, prefix: prefix}
}

// Hit implements WindowStore
func (s *RedisWindowStore) Hit(ctx context.Context, key string, max int, window time.Duration) (RateLimitDecision, error) {
	result, err := hitScript.Run(ctx, s.client, []string{s.prefix + key}, max, window.Milliseconds()).Result()
	if err != nil {
		return RateLimitDecision{}, fmt.Errorf("redis window hit: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 3 {
		return RateLimitDecision{}, fmt.Errorf("redis window hit: unexpected reply %v", result)
	}

	allowed, _ := values[0].(int64)
	count, _ := values[1].(int64)
	ttl, _ := values[2].(int64)

	return RateLimitDecision{
		Allowed: allowed == 1,
		Count:   int(count),
		ResetAt: time.Now().Add(time.Duration(ttl) * time.Millisecond),
	}, nil
}
