package core

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// visitor tracks one client IP inside the rate limit window.
type visitor struct {
	requests     []time.Time
	blockedUntil time.Time
}

// RateLimiter throttles readers per client IP over a sliding one-minute
// window. A blog page is cheap to serve, but search queries and feed pulls
// from misbehaving crawlers are not.
type RateLimiter struct {
	mu       sync.RWMutex
	visitors map[string]*visitor
	limit    int
	window   time.Duration
	done     chan struct{}
}

func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    requestsPerMinute,
		window:   time.Minute,
		done:     make(chan struct{}),
	}

	go rl.evictStale()

	return rl
}

// Middleware rejects over-limit clients with 429.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many requests",
			})
			return
		}

		c.Next()
	}
}

// Allow records a request for the client and reports whether it may pass.
func (rl *RateLimiter) Allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	RecordRateLimitHit()

	now := time.Now()
	v, exists := rl.visitors[clientIP]
	if !exists {
		v = &visitor{}
		rl.visitors[clientIP] = v
	}

	// A blocked client stays blocked for a full window
	if now.Before(v.blockedUntil) {
		RecordRateLimitBlock()
		return false
	}

	// Drop requests that slid out of the window
	cutoff := now.Add(-rl.window)
	kept := v.requests[:0]
	for _, at := range v.requests {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	v.requests = kept

	if len(v.requests) >= rl.limit {
		v.blockedUntil = now.Add(rl.window)
		RecordRateLimitBlock()
		return false
	}

	v.requests = append(v.requests, now)
	return true
}

// evictStale drops visitors that went quiet, so the map does not grow with
// every crawler that ever fetched the feed.
func (rl *RateLimiter) evictStale() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-rl.window * 2)

			rl.mu.Lock()
			for ip, v := range rl.visitors {
				if len(v.requests) == 0 || v.requests[len(v.requests)-1].Before(cutoff) {
					delete(rl.visitors, ip)
				}
			}
			rl.mu.Unlock()
		case <-rl.done:
			return
		}
	}
}

// Stop terminates the eviction goroutine.
func (rl *RateLimiter) Stop() {
	close(rl.done)
}

// SecurityHeadersMiddleware sets the usual protective headers on every
// response. The CSP allows inline scripts and styles because rendered posts
// embed highlighted code snippets with inline styling.
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Content-Security-Policy",
			"default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'")

		c.Next()
	}
}
