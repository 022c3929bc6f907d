package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// maxTrackedClients bounds how many per-client limiters are kept; the least recently seen client is evicted first.
const maxTrackedClients = 4096

type clientLimiters struct {
	rps   int
	cache *lru.Cache[string, *rate.Limiter]
}

func newClientLimiters(rps, size int) *clientLimiters {
	cache, _ := lru.New[string, *rate.Limiter](size)
	return &clientLimiters{rps: rps, cache: cache}
}

// get returns the limiter for ip, creating it on first sight. Concurrent first
// requests from one ip all end up sharing whichever limiter was stored first.
func (l *clientLimiters) get(ip string) *rate.Limiter {
	if limiter, ok := l.cache.Get(ip); ok {
		return limiter
	}
	fresh := rate.NewLimiter(rate.Limit(l.rps), l.rps)
	if prev, found, _ := l.cache.PeekOrAdd(ip, fresh); found {
		return prev
	}
	return fresh
}

// RateLimitMiddleware limits each client IP to rps requests per second with a burst of rps.
// /health and /metrics are never limited so health checks and scrapers keep working under load.
func RateLimitMiddleware(rps int) gin.HandlerFunc {
	limiters := newClientLimiters(rps, maxTrackedClients)

	return func(c *gin.Context) {
		switch c.FullPath() {
		case "/health", "/metrics":
			c.Next()
			return
		}

		if !limiters.get(c.ClientIP()).Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
