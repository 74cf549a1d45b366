package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/hamed0406/sitestatus/internal/clock"
)

// tokenBucket: per-client bucket (max tokens = burst, refilled at rate per second).
type tokenBucket struct {
	tokens float64
	last   time.Time
}

// limiter keeps buckets in a TTL cache so idle clients are forgotten.
type limiter struct {
	rate    float64 // tokens per second
	burst   float64
	clock   clock.Clock
	mu      sync.Mutex
	buckets *cache.Cache
}

func newLimiter(rps float64, burst int, ttl time.Duration, c clock.Clock) *limiter {
	if burst < 1 {
		burst = 1
	}
	return &limiter{
		rate:    rps,
		burst:   float64(burst),
		clock:   c,
		buckets: cache.New(ttl, ttl),
	}
}

func (l *limiter) allow(key string) bool {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	var tb *tokenBucket
	if v, ok := l.buckets.Get(key); ok {
		tb = v.(*tokenBucket)
	} else {
		tb = &tokenBucket{tokens: l.burst, last: now}
	}
	elapsed := now.Sub(tb.last).Seconds()
	tb.tokens = min(l.burst, tb.tokens+elapsed*l.rate)
	tb.last = now

	allowed := tb.tokens >= 1.0
	if allowed {
		tb.tokens -= 1.0
	}
	l.buckets.SetDefault(key, tb)
	return allowed
}

// RateLimit returns a middleware that rate-limits by client IP.
// Example: RateLimit(120, 60) => 120 req/min with burst 60. reqPerMin <= 0 disables it.
func RateLimit(reqPerMin int, burst int) func(http.Handler) http.Handler {
	return rateLimitWithClock(reqPerMin, burst, clock.Real)
}

func rateLimitWithClock(reqPerMin int, burst int, c clock.Clock) func(http.Handler) http.Handler {
	if reqPerMin <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	l := newLimiter(float64(reqPerMin)/60.0, burst, 10*time.Minute, c)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.allow(clientIP(r)) {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	// honor X-Forwarded-For if behind a proxy
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
