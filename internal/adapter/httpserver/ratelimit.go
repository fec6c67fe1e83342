package httpserver

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientLimiter hands out one token bucket per client key. Buckets are
// created on first sight and kept for the life of the server.
type clientLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	limit   rate.Limit
	burst   int
}

func newClientLimiter(reqPerMinute float64) *clientLimiter {
	// Bursts up to ten seconds of budget are tolerated.
	burst := int(reqPerMinute / 6)
	if burst < 1 {
		burst = 1
	}
	return &clientLimiter{
		buckets: make(map[string]*rate.Limiter),
		limit:   rate.Limit(reqPerMinute / 60),
		burst:   burst,
	}
}

func (l *clientLimiter) allow(key string) bool {
	l.mu.Lock()
	bucket, ok := l.buckets[key]
	if !ok {
		bucket = rate.NewLimiter(l.limit, l.burst)
		l.buckets[key] = bucket
	}
	l.mu.Unlock()
	return bucket.Allow()
}

// retryAfter estimates how long the key must wait for its next token.
func (l *clientLimiter) retryAfter(key string) time.Duration {
	l.mu.Lock()
	bucket, ok := l.buckets[key]
	l.mu.Unlock()
	if !ok {
		return 0
	}
	reservation := bucket.Reserve()
	delay := reservation.Delay()
	reservation.Cancel()
	return delay
}

// rateLimit rejects requests over the per-IP minute budget with 429 and
// a Retry-After hint. The RealIP middleware runs earlier in the chain,
// so RemoteAddr already names the client.
func rateLimit(reqPerMinute float64) func(http.Handler) http.Handler {
	limiter := newClientLimiter(reqPerMinute)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.allow(r.RemoteAddr) {
				retry := limiter.retryAfter(r.RemoteAddr)
				w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())+1))
				http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
