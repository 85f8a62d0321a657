package httpserver

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/flashbots/noisyagg/metrics"
	"golang.org/x/time/rate"
)

const defaultLimiterIdleTTL = 10 * time.Minute

// clientLimiter applies one token bucket per client address.
// The ledger's cooldowns throttle identities; this throttles connections.
// Buckets idle for longer than idleTTL are dropped.
type clientLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	exempt  map[string]struct{}
	now     func() time.Time

	mu        sync.Mutex
	limiters  map[string]*clientBucket
	lastSweep time.Time
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(perSecond float64, burst int, exemptPaths []string) *clientLimiter {
	if burst <= 0 {
		burst = 1
	}
	exempt := make(map[string]struct{}, len(exemptPaths))
	for _, p := range exemptPaths {
		exempt[p] = struct{}{}
	}
	return &clientLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		idleTTL:  defaultLimiterIdleTTL,
		exempt:   exempt,
		now:      time.Now,
		limiters: make(map[string]*clientBucket),
	}
}

func (l *clientLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.idleTTL {
		l.sweep(now)
	}

	b, ok := l.limiters[key]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// sweep drops buckets not used within idleTTL. Callers hold l.mu.
func (l *clientLimiter) sweep(now time.Time) {
	for key, b := range l.limiters {
		if now.Sub(b.lastSeen) >= l.idleTTL {
			delete(l.limiters, key)
		}
	}
	l.lastSweep = now
}

func (l *clientLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

func (l *clientLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := l.exempt[r.URL.Path]; !ok && !l.allow(clientKey(r)) {
			metrics.RecordRateLimited()
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey is the host part of RemoteAddr. Forwarding headers only reach it
// when the server trusts them and runs middleware.RealIP.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
