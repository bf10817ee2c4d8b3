package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type timedLimiter struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// RateLimiter is a per-caller token bucket. Callers are keyed by session user
// id, or by remote address before authentication.
type RateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*timedLimiter
	rps       rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*timedLimiter),
		rps:      rate.Limit(rps),
		burst:    burst,
		now:      time.Now,
	}
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	if now.Sub(rl.lastSweep) > limiterIdleTTL {
		for k, tl := range rl.limiters {
			if now.Sub(tl.lastUsed) > limiterIdleTTL {
				delete(rl.limiters, k)
			}
		}
		rl.lastSweep = now
	}
	tl, ok := rl.limiters[key]
	if !ok {
		tl = &timedLimiter{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.limiters[key] = tl
	}
	tl.lastUsed = now
	return tl.limiter
}

// Middleware answers 429 with Retry-After when the caller's bucket is empty.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lim := rl.limiter(callerKey(r))
		if !lim.Allow() {
			// Reserve only to learn the delay; cancel so the rejected request consumes nothing.
			res := lim.Reserve()
			delay := res.Delay()
			res.Cancel()
			retryAfter := int(math.Ceil(delay.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func callerKey(r *http.Request) string {
	if sess := SessionFromCtx(r.Context()); sess != nil {
		return "user:" + sess.UserID.String()
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
