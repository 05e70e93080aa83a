package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GTDGit/registry_api/internal/utils"
)

// RateLimiter is a fixed-window limiter keyed by caller. It guards the
// registration submission endpoint against scripted bulk submissions.
type RateLimiter struct {
	mu       sync.Mutex
	attempts map[string]*attemptInfo
	limit    int
	window   time.Duration
	now      func() time.Time
}

type attemptInfo struct {
	count   int
	firstAt time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		attempts: make(map[string]*attemptInfo),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

// Allow checks if key can make another attempt within the current window.
func (r *RateLimiter) Allow(key string) bool {
	if r.limit <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	info, exists := r.attempts[key]
	if !exists || now.Sub(info.firstAt) > r.window {
		r.attempts[key] = &attemptInfo{count: 1, firstAt: now}
		return true
	}

	if info.count >= r.limit {
		return false
	}
	info.count++
	return true
}

// Cleanup drops expired windows until ctx is cancelled.
func (r *RateLimiter) Cleanup(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.mu.Lock()
			now := r.now()
			for key, info := range r.attempts {
				if now.Sub(info.firstAt) > r.window {
					delete(r.attempts, key)
				}
			}
			r.mu.Unlock()
		}
	}
}

// Handle limits by authenticated account, falling back to client IP.
func (r *RateLimiter) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetString(ContextAccountID)
		if key == "" {
			key = c.ClientIP()
		}
		if !r.Allow(key) {
			utils.RetryableError(c, 429, "RATE_LIMITED", "Too many submissions, please try again later")
			c.Abort()
			return
		}
		c.Next()
	}
}
