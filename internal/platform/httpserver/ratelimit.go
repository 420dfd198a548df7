package httpserver

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/example/course-platform/internal/platform/api"
)

// KeyFunc picks the rate-limit bucket for a request.
type KeyFunc func(r *http.Request) string

// RemoteIP keys by client address, honouring X-Forwarded-For.
func RemoteIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// RateLimiter is a keyed token bucket. Buckets idle for longer than it takes
// to refill are forgotten.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64 // tokens per second
	burst   int
	key     KeyFunc
	now     func() time.Time
	swept   time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

func NewRateLimiter(rate float64, burst int, key KeyFunc) *RateLimiter {
	if key == nil {
		key = RemoteIP
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
		key:     key,
		now:     time.Now,
	}
}

// allow takes a token for key. When none is left it reports how long until
// one refills.
func (rl *RateLimiter) allow(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweep(now)

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(rl.burst), last: now}
		rl.buckets[key] = b
	}

	b.tokens += now.Sub(b.last).Seconds() * rl.rate
	if b.tokens > float64(rl.burst) {
		b.tokens = float64(rl.burst)
	}
	b.last = now

	if b.tokens < 1 {
		if rl.rate <= 0 {
			return false, time.Minute
		}
		return false, time.Duration((1 - b.tokens) / rl.rate * float64(time.Second))
	}
	b.tokens--
	return true, 0
}

// sweep drops full buckets at most once a minute. Caller holds mu.
func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.swept) < time.Minute || rl.rate <= 0 {
		return
	}
	rl.swept = now
	refill := time.Duration(float64(rl.burst) / rl.rate * float64(time.Second))
	for k, b := range rl.buckets {
		if now.Sub(b.last) > refill {
			delete(rl.buckets, k)
		}
	}
}

// Middleware answers 429 RATE_LIMITED once a key's bucket is empty.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ok, wait := rl.allow(rl.key(r)); !ok {
			api.RateLimited(w, "RATE_LIMITED", "Too many requests", RequestIDFromContext(r.Context()), wait)
			return
		}
		next.ServeHTTP(w, r)
	})
}
