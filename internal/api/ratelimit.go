package api

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// webhookRateLimit is the per-IP token bucket for the unauthenticated
// webhook endpoint (spec §4.1's internal-surface throttling), grounded on
// r3e-network-service_layer's infrastructure/middleware/ratelimit.go
// per-key rate.Limiter map.
const (
	webhookRatePerSecond = 5
	webhookBurst         = 10
)

// IPRateLimiter hands out one token-bucket limiter per client IP, creating
// it lazily on first use.
type IPRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// NewIPRateLimiter builds a limiter allowing ratePerSecond sustained
// requests per IP with a burst capacity of burst.
func NewIPRateLimiter(ratePerSecond float64, burst int) *IPRateLimiter {
	return &IPRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(ratePerSecond),
		burst:    burst,
	}
}

func (l *IPRateLimiter) limiterFor(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[ip]
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[ip] = limiter
	}
	return limiter
}

// Middleware rejects a request with 429 once its client IP has exhausted
// its token bucket.
func (l *IPRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.limiterFor(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "Too Many Requests",
				"message": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
