package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"driftwood/pkg/logging"
)

// RateLimitStore counts requests per client within a fixed window.
// Incr returns the window's running count after adding the request.
type RateLimitStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisRateLimitStore keeps window counters in Redis so multiple
// instances share one budget.
type RedisRateLimitStore struct {
	client goredis.UniversalClient
}

// NewRedisRateLimitStore creates a Redis-backed rate limit store
func NewRedisRateLimitStore(client goredis.UniversalClient) *RedisRateLimitStore {
	return &RedisRateLimitStore{client: client}
}

func (s *RedisRateLimitStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("rate limit incr: %w", err)
	}

	// Only the request that opens the window sets the TTL. Refreshing it
	// on every hit would let steady traffic hold the counter alive past
	// the window and never reset.
	if count == 1 {
		if err := s.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, fmt.Errorf("rate limit expire: %w", err)
		}
	}

	return count, nil
}

// MemoryRateLimitStore is the single-instance default: a mutex-protected
// map of window counters, expired windows pruned on access.
type MemoryRateLimitStore struct {
	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	count   int64
	resetAt time.Time
}

// NewMemoryRateLimitStore creates an in-process rate limit store
func NewMemoryRateLimitStore() *MemoryRateLimitStore {
	return &MemoryRateLimitStore{windows: make(map[string]*window)}
}

func (s *MemoryRateLimitStore) Incr(_ context.Context, key string, windowDur time.Duration) (int64, error) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || now.After(w.resetAt) {
		w = &window{resetAt: now.Add(windowDur)}
		s.windows[key] = w
	}
	w.count++

	// Opportunistic prune so the map does not grow with one-off IPs
	if len(s.windows) > 4096 {
		for k, v := range s.windows {
			if now.After(v.resetAt) {
				delete(s.windows, k)
			}
		}
	}

	return w.count, nil
}

// RateLimitMiddleware rejects clients exceeding limit requests per window,
// keyed by client IP. Store failures fail open: limiting is best-effort
// and must not block the content-serving path.
func RateLimitMiddleware(store RateLimitStore, limit int, windowDur time.Duration, logger logging.Logger) HandlerFunc {
	return func(c Context) {
		if limit <= 0 {
			c.Next()
			return
		}

		key := "ratelimit:" + c.ClientIP()
		count, err := store.Incr(c.Request.Context(), key, windowDur)
		if err != nil {
			logger.WithError(err).Warn("Rate limit store unavailable, failing open")
			c.Next()
			return
		}

		if count > int64(limit) {
			c.JSON(http.StatusTooManyRequests, H{"error": "Rate limit exceeded"})
			c.Abort()
			return
		}

		c.Next()
	}
}
