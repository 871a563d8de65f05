// Package middleware provides the gin middleware chain of the storygraph API.
package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/persistorai/storygraph/internal/httputil"
)

// maxClients bounds the number of tracked client IPs.
const maxClients = 100_000

// RateLimiter applies a token bucket per client IP.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	limit   rate.Limit
	burst   int
	now     func() time.Time
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a RateLimiter allowing ratePerSec requests per second
// with the given burst. Idle clients are evicted until ctx is cancelled.
func NewRateLimiter(ctx context.Context, ratePerSec float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		clients: make(map[string]*client),
		limit:   rate.Limit(ratePerSec),
		burst:   burst,
		now:     time.Now,
	}
	go rl.evictIdle(ctx, 5*time.Minute, 10*time.Minute)

	return rl
}

func (rl *RateLimiter) evictIdle(ctx context.Context, every, maxIdle time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.mu.Lock()
			for ip, c := range rl.clients {
				if now.Sub(c.lastSeen) > maxIdle {
					delete(rl.clients, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// allow reports whether ip may proceed. The second result is false when the
// client table is full and ip is new.
func (rl *RateLimiter) allow(ip string) (allowed, tracked bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	c, ok := rl.clients[ip]
	if !ok {
		if len(rl.clients) >= maxClients {
			return false, false
		}

		c = &client{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[ip] = c
	}

	c.lastSeen = now

	return c.limiter.AllowN(now, 1), true
}

// Handler returns gin middleware that applies rate limiting per client IP.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		// ClientIP ignores forwarding headers; the router trusts no proxies.
		allowed, tracked := rl.allow(c.ClientIP())

		switch {
		case !tracked:
			httputil.RespondError(c, http.StatusTooManyRequests, "rate_limited", "too many clients")
			return
		case !allowed:
			c.Header("Retry-After", "1")
			httputil.RespondError(c, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
			return
		}

		c.Next()
	}
}
