// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the relay's fixed-window rate limiter. Each of the
// three action families (otm, file, chat) gets its own Limiter instance with
// its own per-action thresholds; buckets are keyed by client IP and count
// requests inside a 60-second window that starts at the first request and
// resets lazily on the next request after expiry. Families never interact.
//
// Buckets are in-memory. Idle buckets are evicted opportunistically during
// lookups so a long-running process does not accumulate a bucket per IP it
// ever saw.
package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// bucket counts admitted requests per action inside one window.
type bucket struct {
	windowStart time.Time
	counts      map[string]int
}

// Limiter is a fixed-window, per-IP, per-action request limiter.
//
// Safe for concurrent use. The window check, counter increment, and
// opportunistic cleanup all run under one mutex.
type Limiter struct {
	window time.Duration
	limits map[string]int

	mu       sync.Mutex
	buckets  map[string]*bucket
	cleanupN uint64
}

// cleanupEvery is the number of lookups between opportunistic GC passes.
const cleanupEvery = 4096

// idleWindows is how many whole windows a bucket may sit untouched before
// eviction.
const idleWindows = 3

// NewLimiter constructs a limiter for one action family. limits maps action
// names (e.g. "post", "get") to the maximum number of requests admitted per
// window for one client.
func NewLimiter(window time.Duration, limits map[string]int) *Limiter {
	return &Limiter{
		window:  window,
		limits:  limits,
		buckets: make(map[string]*bucket),
	}
}

// Allow reports whether one more action request from key fits in the current
// window, counting it when it does.
func (l *Limiter) Allow(key, action string) bool {
	max, known := l.limits[action]
	if !known {
		return true
	}
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.cleanupN++
	if l.cleanupN >= cleanupEvery {
		l.evictIdle(now)
		l.cleanupN = 0
	}

	b, ok := l.buckets[key]
	if !ok || now.Sub(b.windowStart) >= l.window {
		l.buckets[key] = &bucket{
			windowStart: now,
			counts:      map[string]int{action: 1},
		}
		return true
	}
	if b.counts[action] >= max {
		return false
	}
	b.counts[action]++
	return true
}

// evictIdle drops buckets whose window expired idleWindows ago or more.
// Caller holds l.mu.
func (l *Limiter) evictIdle(now time.Time) {
	cutoff := time.Duration(idleWindows) * l.window
	for k, b := range l.buckets {
		if now.Sub(b.windowStart) >= cutoff {
			delete(l.buckets, k)
		}
	}
}

// Handler returns a Gin middleware enforcing the limiter for one action.
// Rejected requests get 429 with the relay's flat error body and a minimal
// Retry-After header.
func (l *Limiter) Handler(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.Allow(ClientKey(c), action) {
			c.Next()
			return
		}
		c.Header("Retry-After", "60")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
	}
}

// ClientKey derives the rate-limit identity of a request: the first
// comma-separated value of X-Forwarded-For when present, otherwise the
// socket's remote host, otherwise the literal "unknown".
func ClientKey(c *gin.Context) string {
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0])
		if first != "" {
			return first
		}
	}
	if c.Request.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(c.Request.RemoteAddr); err == nil && host != "" {
			return host
		}
		return c.Request.RemoteAddr
	}
	return "unknown"
}
