package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"biocloud/internal/httputil"

	"golang.org/x/time/rate"
)

// idleLimiter is how long an unused per-key limiter is kept.
const idleLimiter = 10 * time.Minute

// KeyedLimiter holds one token bucket per key (user id or remote address).
type KeyedLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*keyedEntry
	lastScan time.Time
}

type keyedEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyedLimiter allows perMinute events per key, with bursts of up to burst.
// A perMinute of zero disables limiting.
func NewKeyedLimiter(perMinute, burst int) *KeyedLimiter {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
	}
	if burst < 1 {
		burst = 1
	}
	return &KeyedLimiter{
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*keyedEntry),
	}
}

// Allow reports whether one more event is allowed for key now.
func (l *KeyedLimiter) Allow(key string) bool {
	if l.limit == rate.Inf {
		return true
	}

	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastScan) > idleLimiter {
		for k, e := range l.limiters {
			if now.Sub(e.lastSeen) > idleLimiter {
				delete(l.limiters, k)
			}
		}
		l.lastScan = now
	}

	e, ok := l.limiters[key]
	if !ok {
		e = &keyedEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// RateLimit throttles a handler per caller. Signed-in callers are keyed by
// user id, anonymous ones by remote address.
func RateLimit(limiter *KeyedLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.RemoteAddr
			if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
				key = host
			}
			if id := httputil.GetIdentity(r); !id.IsAnonymous() {
				key = id.UserID
			}

			if !limiter.Allow(key) {
				w.Header().Set("Retry-After", strconv.Itoa(60))
				httputil.RespondError(w, http.StatusTooManyRequests, "too many requests, slow down")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
