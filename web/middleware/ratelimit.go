package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// TODO: store in Redis so limits hold across instances

type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int
	window   time.Duration
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// recent drops requests older than the window. Caller holds mu.
func (rl *RateLimiter) recent(ip string, now time.Time) []time.Time {
	var newTimes []time.Time
	for _, t := range rl.requests[ip] {
		if now.Sub(t) < rl.window {
			newTimes = append(newTimes, t)
		}
	}
	return newTimes
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		now := time.Now()

		rl.mu.Lock()
		newTimes := rl.recent(ip, now)
		if len(newTimes) >= rl.limit {
			rl.requests[ip] = newTimes
			rl.mu.Unlock()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "Too many requests, please try later.",
			})
			return
		}
		rl.requests[ip] = append(newTimes, now)
		rl.mu.Unlock()

		c.Next()
	}
}

// StartCleanup forgets idle clients every interval until ctx is done.
func (rl *RateLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			rl.mu.Lock()
			now := time.Now()
			for ip := range rl.requests {
				if newTimes := rl.recent(ip, now); len(newTimes) == 0 {
					delete(rl.requests, ip)
				} else {
					rl.requests[ip] = newTimes
				}
			}
			rl.mu.Unlock()
		}
	}()
}
