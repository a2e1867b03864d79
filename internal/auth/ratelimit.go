package auth

import (
	"sync"

	"etkash_go_backend/internal/errors"
	"etkash_go_backend/internal/metrics"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// maxTrackedClients bounds the limiter map; past it, idle limiters are pruned.
const maxTrackedClients = 10000

// SignInLimiter throttles sign-in attempts per client IP.
type SignInLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewSignInLimiter allows perSecond attempts per client with the given burst.
func NewSignInLimiter(perSecond float64, burst int) *SignInLimiter {
	return &SignInLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

func (l *SignInLimiter) getOrCreate(key string) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.limiters[key]
	l.mu.RUnlock()
	if exists {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists := l.limiters[key]; exists {
		return limiter
	}
	if len(l.limiters) >= maxTrackedClients {
		l.pruneLocked()
	}
	limiter = rate.NewLimiter(l.limit, l.burst)
	l.limiters[key] = limiter
	return limiter
}

// pruneLocked drops limiters that have refilled completely; they carry no state.
func (l *SignInLimiter) pruneLocked() {
	for key, limiter := range l.limiters {
		if limiter.Tokens() >= float64(l.burst) {
			delete(l.limiters, key)
		}
	}
}

func (l *SignInLimiter) Allow(key string) bool {
	return l.getOrCreate(key).Allow()
}

func (l *SignInLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			metrics.SignInTotal.WithLabelValues("throttled").Inc()
			errors.HandleError(c, errors.New429Error())
			return
		}
		c.Next()
	}
}
