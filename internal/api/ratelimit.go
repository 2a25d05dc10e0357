/**
 * @description
 * Per-client throttling for POST /verify. Redis holds a fixed-window counter shared by
 * every replica; when Redis is not configured or fails, a process-local token bucket
 * takes over so the endpoint is never left unthrottled.
 */
package api

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Salmandabbakuti/xenea-discord-bot/internal/app"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

const verifyScope = "verify"

var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RateLimiter decides whether subject may make another request.
type RateLimiter interface {
	Allow(ctx context.Context, subject string) (allowed bool, retryAfterSeconds int, err error)
}

// RedisRateLimiter implements distributed rate limiting using Redis.
type RedisRateLimiter struct {
	client redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
}

// NewRedisRateLimiter allows limit requests per window for each subject.
func NewRedisRateLimiter(client redis.UniversalClient, prefix string, limit int, window time.Duration) *RedisRateLimiter {
	trimmedPrefix := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmedPrefix == "" {
		trimmedPrefix = "xeneaguard:rate_limit"
	}
	return &RedisRateLimiter{client: client, prefix: trimmedPrefix, limit: limit, window: window}
}

func (r *RedisRateLimiter) Allow(ctx context.Context, subject string) (bool, int, error) {
	if r == nil || r.client == nil || r.limit <= 0 || r.window <= 0 {
		return true, 0, nil
	}

	windowMs := r.window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}

	key := fmt.Sprintf("%s:%s:%s", r.prefix, verifyScope, subject)
	rawResult, err := fixedWindowScript.Run(ctx, r.client, []string{key}, windowMs).Result()
	if err != nil {
		return false, 0, err
	}

	values, ok := rawResult.([]interface{})
	if !ok || len(values) != 2 {
		return false, 0, fmt.Errorf("unexpected redis limiter response shape: %T", rawResult)
	}
	count, ok := values[0].(int64)
	if !ok {
		return false, 0, fmt.Errorf("unexpected redis limiter count type: %T", values[0])
	}
	ttlMs, ok := values[1].(int64)
	if !ok || ttlMs < 0 {
		ttlMs = windowMs
	}

	if count <= int64(r.limit) {
		return true, 0, nil
	}
	return false, ceilSeconds(time.Duration(ttlMs) * time.Millisecond), nil
}

// MemoryRateLimiter is a process-local token bucket per subject.
type MemoryRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*memoryEntry
	every    rate.Limit
	burst    int
	idleTTL  time.Duration
	now      func() time.Time
	lastGC   time.Time
}

type memoryEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewMemoryRateLimiter allows bursts of limit requests refilled evenly over window.
func NewMemoryRateLimiter(limit int, window time.Duration) *MemoryRateLimiter {
	m := &MemoryRateLimiter{
		limiters: make(map[string]*memoryEntry),
		burst:    limit,
		idleTTL:  2 * window,
		now:      time.Now,
	}
	if limit > 0 && window > 0 {
		m.every = rate.Every(window / time.Duration(limit))
	}
	return m
}

func (m *MemoryRateLimiter) Allow(ctx context.Context, subject string) (bool, int, error) {
	if m.burst <= 0 || m.every == 0 {
		return true, 0, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.collect(now)

	entry, ok := m.limiters[subject]
	if !ok {
		entry = &memoryEntry{limiter: rate.NewLimiter(m.every, m.burst)}
		m.limiters[subject] = entry
	}
	entry.lastSeen = now

	reservation := entry.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return false, ceilSeconds(m.idleTTL), nil
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return false, ceilSeconds(delay), nil
	}
	return true, 0, nil
}

// collect drops idle subjects at most once per idle period.
func (m *MemoryRateLimiter) collect(now time.Time) {
	if now.Sub(m.lastGC) < m.idleTTL {
		return
	}
	for subject, entry := range m.limiters {
		if now.Sub(entry.lastSeen) > m.idleTTL {
			delete(m.limiters, subject)
		}
	}
	m.lastGC = now
}

// RateLimitMiddleware throttles by client IP using primary, or fallback when primary errors.
// primary may be nil.
func RateLimitMiddleware(primary, fallback RateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject := clientIP(r)

			allowed, retryAfter, err := true, 0, error(nil)
			if primary != nil {
				allowed, retryAfter, err = primary.Allow(r.Context(), subject)
				if err != nil {
					logger.Warn("distributed rate limiter failed; using in-memory limiter", "error", err)
				}
			}
			if primary == nil || err != nil {
				allowed, retryAfter, _ = fallback.Allow(r.Context(), subject)
			}

			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				respondWithError(w, http.StatusTooManyRequests, app.ReasonRateLimited, "Too many requests. Please try again later.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP keys limiters on the peer address, which RealIP rewrites only when proxy headers are trusted.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func ceilSeconds(d time.Duration) int {
	seconds := int(math.Ceil(d.Seconds()))
	if seconds < 1 {
		return 1
	}
	return seconds
}
