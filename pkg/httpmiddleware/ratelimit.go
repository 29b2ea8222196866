package httpmiddleware

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the per-key sliding window rate limiter.
type RateLimitConfig struct {
	// Max is the number of requests allowed per window.
	Max int
	// Window is the length of the sliding window.
	Window time.Duration
	// KeyFunc derives the bucketing key from a request. Nil means client IP.
	KeyFunc func(*http.Request) string
}

// visitor holds counts for two adjacent windows. The effective rate is the
// current count plus the previous window weighted by how much of it still
// overlaps the sliding window, which smooths the boundary burst a plain
// fixed window would allow.
type visitor struct {
	prev, curr           float64
	prevStart, currStart time.Time
}

type rateLimiter struct {
	max    int
	window time.Duration
	keyFor func(*http.Request) string

	mu       sync.Mutex
	visitors map[string]*visitor
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	keyFor := cfg.KeyFunc
	if keyFor == nil {
		keyFor = clientIP
	}
	return &rateLimiter{
		max:      cfg.Max,
		window:   cfg.Window,
		keyFor:   keyFor,
		visitors: make(map[string]*visitor),
	}
}

// allow records one request for key and reports whether it fits the limit,
// together with the remaining quota and the reset time for the headers.
func (rl *rateLimiter) allow(key string, now time.Time) (remaining int, resetAt time.Time, ok bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v := rl.visitors[key]
	if v == nil {
		v = &visitor{currStart: now}
		rl.visitors[key] = v
	}

	if now.Sub(v.currStart) >= rl.window {
		v.prev, v.prevStart = v.curr, v.currStart
		v.curr, v.currStart = 0, now.Truncate(rl.window)
		if now.Sub(v.prevStart) >= 2*rl.window {
			v.prev = 0
		}
	}

	weight := 1 - now.Sub(v.currStart).Seconds()/rl.window.Seconds()
	if weight < 0 {
		weight = 0
	}
	used := v.prev*weight + v.curr
	resetAt = v.currStart.Add(rl.window)

	if used >= float64(rl.max) {
		return 0, resetAt, false
	}
	v.curr++

	remaining = int(float64(rl.max) - used - 1)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, resetAt, true
}

// prune drops visitors whose both windows have fully expired.
func (rl *rateLimiter) prune(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, v := range rl.visitors {
		if now.Sub(v.currStart) >= 2*rl.window {
			delete(rl.visitors, key)
		}
	}
}

func (rl *rateLimiter) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(2 * rl.window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.prune(now)
		}
	}
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		remaining, resetAt, ok := rl.allow(rl.keyFor(r), time.Now())

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.max))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !ok {
			retryAfter := time.Until(resetAt)
			if retryAfter < 0 {
				retryAfter = 0
			}
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"code":    http.StatusTooManyRequests,
				"message": "rate limit exceeded",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RateLimit enforces a per-key sliding window limit. Rejected requests get
// 429 with a JSON body; every response carries X-RateLimit-Limit,
// X-RateLimit-Remaining and X-RateLimit-Reset.
//
// Stale visitor entries are never evicted by this variant; use
// RateLimitWithCleanup in long-running servers.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newRateLimiter(cfg).middleware
}

// RateLimitWithCleanup is RateLimit plus a background goroutine that evicts
// expired visitors every 2x the window. The goroutine exits with ctx.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	rl := newRateLimiter(cfg)
	go rl.pruneLoop(ctx)
	return rl.middleware
}

// clientIP resolves the caller address: first hop of X-Forwarded-For, then
// X-Real-IP, then RemoteAddr without the port.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
