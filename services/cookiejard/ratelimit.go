package cookiejard

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles admin requests per client address.
type RateLimiter struct {
	perSecond float64
	burst     int
	idleTTL   time.Duration
	now       func() time.Time

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time
}

// NewRateLimiter builds a limiter allowing perSecond sustained requests with
// the given burst. A non-positive rate disables limiting.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		perSecond: perSecond,
		burst:     burst,
		idleTTL:   5 * time.Minute,
		now:       time.Now,
		visitors:  make(map[string]*visitor),
	}
}

// Middleware rejects requests over the limit with 429.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l == nil || l.perSecond <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		if !l.allow(clientID(r)) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) allow(id string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastSweep) >= l.idleTTL {
		l.sweep(now)
	}
	v, ok := l.visitors[id]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(l.perSecond), l.burst)}
		l.visitors[id] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// sweep evicts visitors idle for longer than idleTTL. Callers hold mu.
func (l *RateLimiter) sweep(now time.Time) {
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.idleTTL {
			delete(l.visitors, key)
		}
	}
	l.lastSweep = now
}

// clientID keys on the connection address. Forwarding headers are only
// trusted through chimw.RealIP, which rewrites RemoteAddr upstream.
func clientID(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (l *RateLimiter) visitorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}
