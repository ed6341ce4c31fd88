package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimiter applies a fixed-window request quota per client IP. Execute
// requests spawn real processes, so a runaway client must not be able to
// fork-bomb the host through the API.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*window
	limit   int
	period  time.Duration
}

type window struct {
	count   int
	resetAt time.Time
}

// NewRateLimiter allows limit requests per period for each client. A
// non-positive limit disables the limiter.
func NewRateLimiter(limit int, period time.Duration) *RateLimiter {
	rl := &RateLimiter{
		clients: make(map[string]*window),
		limit:   limit,
		period:  period,
	}
	if limit > 0 {
		go rl.cleanup()
	}
	return rl
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.period)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		now := time.Now()
		for client, w := range rl.clients {
			if now.After(w.resetAt.Add(rl.period)) {
				delete(rl.clients, client)
			}
		}
		rl.mu.Unlock()
	}
}

// Middleware returns the gin handler enforcing the quota.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.limit <= 0 {
			c.Next()
			return
		}

		client := c.ClientIP()
		now := time.Now()

		rl.mu.Lock()
		w, ok := rl.clients[client]
		if !ok || now.After(w.resetAt) {
			w = &window{resetAt: now.Add(rl.period)}
			rl.clients[client] = w
		}
		w.count++
		over := w.count > rl.limit
		retryAfter := int(w.resetAt.Sub(now).Seconds()) + 1
		rl.mu.Unlock()

		if over {
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": retryAfter,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
