package http

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	commonerrors "github.com/AlibekovAA/worktime/backend/internal/common/errors"
	"github.com/AlibekovAA/worktime/backend/internal/common/logger"
	"github.com/AlibekovAA/worktime/backend/internal/common/ratelimit"
	"github.com/AlibekovAA/worktime/backend/internal/observability/metrics"
)

const rateLimitCleanupInterval = 5 * time.Minute

type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
}

func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
	}
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[key] = limiter
	}
	return limiter
}

func (rl *RateLimiter) Allow(key string) bool {
	return rl.getLimiter(key).Allow()
}

// evictIdle drops buckets that have refilled completely; they carry no state.
func (rl *RateLimiter) evictIdle() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, limiter := range rl.limiters {
		if limiter.Tokens() >= float64(rl.burst) {
			delete(rl.limiters, key)
		}
	}
}

func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

type PathLimit struct {
	RequestsPerSecond float64
	Burst             int
}

// DefaultAuthPathLimits are per client IP token buckets for the auth routes.
var DefaultAuthPathLimits = map[string]PathLimit{
	"/api/auth/login":    {RequestsPerSecond: 1, Burst: 5},
	"/api/auth/register": {RequestsPerSecond: 0.2, Burst: 3},
	"/api/auth/refresh":  {RequestsPerSecond: 2, Burst: 10},
	"/api/auth/logout":   {RequestsPerSecond: 2, Burst: 10},
}

var defaultGeneralLimit = PathLimit{RequestsPerSecond: 10, Burst: 30}

type StrictRateLimiter struct {
	byPath  map[string]*RateLimiter
	general *RateLimiter
	stop    chan struct{}
	once    sync.Once
}

func NewStrictRateLimiter(limits map[string]PathLimit) *StrictRateLimiter {
	if limits == nil {
		limits = DefaultAuthPathLimits
	}
	srl := &StrictRateLimiter{
		byPath:  make(map[string]*RateLimiter, len(limits)),
		general: NewRateLimiter(defaultGeneralLimit.RequestsPerSecond, defaultGeneralLimit.Burst),
		stop:    make(chan struct{}),
	}
	for path, l := range limits {
		srl.byPath[path] = NewRateLimiter(l.RequestsPerSecond, l.Burst)
	}
	go srl.cleanupLoop()
	return srl
}

func (srl *StrictRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rateLimitCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-srl.stop:
			return
		case <-ticker.C:
			srl.general.evictIdle()
			for _, l := range srl.byPath {
				l.evictIdle()
			}
		}
	}
}

func (srl *StrictRateLimiter) Stop(context.Context) error {
	srl.once.Do(func() { close(srl.stop) })
	return nil
}

func (srl *StrictRateLimiter) MiddlewareForPath(path string) func(http.Handler) http.Handler {
	limiter, ok := srl.byPath[path]
	limiterType := "path"
	if !ok {
		limiter = srl.general
		limiterType = "general"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(GetClientIP(r)) {
				metrics.RateLimitBlocked.WithLabelValues(path, limiterType).Inc()
				WriteErrorEnvelope(w, http.StatusTooManyRequests, CodeRateLimited, commonerrors.ErrRateLimited.Message(), nil, TraceIDFromContext(r.Context()))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// WindowLimitMiddleware counts attempts per client IP in a shared fixed window.
// When the backing store is unreachable the request is let through.
func WindowLimitMiddleware(limiter *ratelimit.WindowLimiter, scope string, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, err := limiter.Allow(r.Context(), scope+":"+GetClientIP(r))
			if err != nil {
				log.WithFields(r.Context(), logger.Fields{
					"scope":  scope,
					"action": "rate_limit_store_error",
				}).Warnf("window limiter unavailable: %v", err)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(decision.Limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))

			if !decision.Allowed {
				metrics.RateLimitBlocked.WithLabelValues(r.URL.Path, "window_"+scope).Inc()
				w.Header().Set("Retry-After", strconv.FormatInt(decision.RetryAfterSeconds(), 10))
				WriteErrorEnvelope(w, http.StatusTooManyRequests, CodeRateLimited, commonerrors.ErrRateLimited.Message(), nil, TraceIDFromContext(r.Context()))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
