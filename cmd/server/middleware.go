package main

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"storefront-api/internal/services"
)

const (
	sessionHeader = "X-Session-ID"
	sessionKey    = "session"
)

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, "+sessionHeader)
		c.Header("Access-Control-Expose-Headers", sessionHeader+", X-Request-ID")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// limiterIdle is how long a client IP may go quiet before its bucket is
// dropped. A full bucket refills well inside this window, so a returning
// client sees no difference.
const limiterIdle = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiters hands out one token bucket per client IP.
type rateLimiters struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

func newRateLimiters(perSecond float64, burst int) *rateLimiters {
	return &rateLimiters{
		limiters: make(map[string]*limiterEntry),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		now:      time.Now,
	}
}

func (r *rateLimiters) get(ip string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.limiters[ip]
	if !exists {
		entry = &limiterEntry{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.limiters[ip] = entry
	}
	entry.lastSeen = r.now()
	return entry.limiter
}

// sweep drops buckets untouched for longer than idle and returns how many went.
func (r *rateLimiters) sweep(idle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for ip, entry := range r.limiters {
		if now.Sub(entry.lastSeen) > idle {
			delete(r.limiters, ip)
			removed++
		}
	}
	return removed
}

// runJanitor sweeps idle buckets on every interval until ctx is done.
func (r *rateLimiters) runJanitor(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.sweep(idle); n > 0 {
				log.Debugf("Dropped %d idle rate limiters", n)
			}
		}
	}
}

func (r *rateLimiters) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !r.get(ip).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limit_exceeded",
				"message":     "Too many requests from your IP",
				"retry_after": time.Duration(float64(time.Second) / float64(r.limit)).String(),
				"ip":          ip,
			})
			return
		}
		c.Next()
	}
}

// sessionMiddleware attaches the shopper's session, creating one when the
// request carries no valid id, and echoes the id back in a header and cookie.
func sessionMiddleware(store *services.SessionStore, cookieName string, ttl time.Duration, secure bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(sessionHeader)
		if id == "" {
			id, _ = c.Cookie(cookieName)
		}

		sess, created := store.Resolve(id)
		if created {
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(cookieName, sess.ID, int(ttl.Seconds()), "/", "", secure, true)
		}

		c.Set(sessionKey, sess)
		c.Set("session_id", sess.ID)
		c.Header(sessionHeader, sess.ID)
		c.Next()
	}
}

func currentSession(c *gin.Context) *services.Session {
	return c.MustGet(sessionKey).(*services.Session)
}
