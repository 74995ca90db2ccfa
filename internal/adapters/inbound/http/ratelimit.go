package http

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig holds per-caller rate limiting configuration.
type RateLimitConfig struct {
	// RequestsPerSecond is the steady-state rate allowed per caller.
	// Default: 10.
	RequestsPerSecond float64

	// Burst is the instantaneous burst allowed per caller. Default: 20.
	Burst int

	// IdleEviction is how long an idle caller's limiter is retained.
	// Default: 10 minutes.
	IdleEviction time.Duration
}

// RateLimitConfigDefaults returns default rate limiting configuration.
func RateLimitConfigDefaults() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 10,
		Burst:             20,
		IdleEviction:      10 * time.Minute,
	}
}

type callerLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is HTTP middleware applying a token-bucket limit per caller
// identity. Requests without a caller header share one bucket keyed by the
// empty string; the handler behind rejects them anyway.
type RateLimiter struct {
	config   RateLimitConfig
	mu       sync.Mutex
	limiters map[string]*callerLimiter
}

// NewRateLimiter creates a per-caller rate limiter.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	defaults := RateLimitConfigDefaults()
	if config.RequestsPerSecond == 0 {
		config.RequestsPerSecond = defaults.RequestsPerSecond
	}
	if config.Burst == 0 {
		config.Burst = defaults.Burst
	}
	if config.IdleEviction == 0 {
		config.IdleEviction = defaults.IdleEviction
	}
	return &RateLimiter{
		config:   config,
		limiters: make(map[string]*callerLimiter),
	}
}

// Middleware wraps next with the rate limit check.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(r.Header.Get(CallerHeader)) {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(caller string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cl, ok := rl.limiters[caller]
	if !ok {
		cl = &callerLimiter{
			limiter: rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.Burst),
		}
		rl.limiters[caller] = cl
		rl.evictIdle(now)
	}
	cl.lastSeen = now
	return cl.limiter.Allow()
}

// evictIdle drops limiters not seen within the eviction window. Called with
// the lock held, amortized over new-caller insertions.
func (rl *RateLimiter) evictIdle(now time.Time) {
	for key, cl := range rl.limiters {
		if now.Sub(cl.lastSeen) > rl.config.IdleEviction {
			delete(rl.limiters, key)
		}
	}
}
