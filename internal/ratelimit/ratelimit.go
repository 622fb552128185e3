// Package ratelimit guards mutating admin endpoints with a per-identity
// fixed-window counter.
//
// State is process-local and in-memory; it resets on restart. That is a
// documented limitation: the limiter is an injected component, so a
// distributed backend can replace it without changing call sites.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LegionofMany/blockpages-risk/internal/metrics"
)

// Config configures the admin rate limiter.
type Config struct {
	// MaxCalls is the number of mutating calls allowed per window.
	MaxCalls int
	// Window is the counting window, anchored at the first call in it.
	Window time.Duration
	// CleanupInterval is how often stale windows are dropped.
	CleanupInterval time.Duration
}

// DefaultConfig returns the default admin limits.
func DefaultConfig() Config {
	return Config{
		MaxCalls:        10,
		Window:          60 * time.Second,
		CleanupInterval: time.Minute,
	}
}

// Limiter tracks call counts per admin identity. The window resets when
// Config.Window has elapsed since the first call in it, not as a rolling
// average.
type Limiter struct {
	cfg     Config
	mu      sync.Mutex
	windows map[string]*window
	stop    chan struct{}
	now     func() time.Time
}

type window struct {
	start time.Time
	count int
}

// New creates a rate limiter and starts its cleanup goroutine.
func New(cfg Config) *Limiter {
	l := &Limiter{
		cfg:     cfg,
		windows: make(map[string]*window),
		stop:    make(chan struct{}),
		now:     time.Now,
	}
	go l.cleanup()
	return l
}

// Stop stops the cleanup goroutine.
func (l *Limiter) Stop() {
	close(l.stop)
}

func (l *Limiter) cleanup() {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			cutoff := l.now().Add(-2 * l.cfg.Window)
			for key, w := range l.windows {
				if w.start.Before(cutoff) {
					delete(l.windows, key)
				}
			}
			l.mu.Unlock()
		case <-l.stop:
			return
		}
	}
}

// Allow records one call for the identity and reports whether it is
// within the limit. When rejected, retryAfter is the time remaining in
// the current window. Check and increment happen atomically under one
// lock, so concurrent admin requests cannot race past the limit.
func (l *Limiter) Allow(identity string) (allowed bool, retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[identity]
	if !ok || now.Sub(w.start) >= l.cfg.Window {
		l.windows[identity] = &window{start: now, count: 1}
		return true, 0
	}

	if w.count >= l.cfg.MaxCalls {
		return false, l.cfg.Window - now.Sub(w.start)
	}
	w.count++
	return true, 0
}

// Middleware returns a gin middleware that rate limits by the identity
// placed in the context by the admin auth middleware (falling back to
// client IP). Rejections are a distinct rate_limited response, not a
// generic failure, so callers know to retry after the window.
func (l *Limiter) Middleware(identityKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := c.GetString(identityKey)
		if identity == "" {
			identity = c.ClientIP()
		}

		allowed, retryAfter := l.Allow(identity)
		if !allowed {
			metrics.AdminRateLimitedTotal.Inc()
			seconds := int(retryAfter.Seconds())
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limited",
				"message":     "Too many admin mutations. Try again shortly.",
				"retry_after": seconds,
			})
			return
		}

		c.Next()
	}
}
