package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/relayhook/webhook-delivery-service/internal/cache"
)

// RedisRateLimiter implements a fixed one-minute window rate limiter backed
// by Redis: a per-IP counter that expires one minute after its first hit.
// Unlike an in-memory limiter, this works across multiple API replicas, which
// matters here since the ingest endpoint is the one surface under load.
type RedisRateLimiter struct {
	redis  *cache.RedisCache
	rpm    int
	prefix string
}

// NewRedisRateLimiter creates a distributed rate limiter using Redis.
func NewRedisRateLimiter(redis *cache.RedisCache, rpm int) *RedisRateLimiter {
	return &RedisRateLimiter{
		redis:  redis,
		rpm:    rpm,
		prefix: "ratelimit:",
	}
}

// Middleware returns a Gin middleware that enforces the distributed rate limit
// per client IP, failing open if Redis is unavailable.
func (rl *RedisRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := clientIP(c)
		key := fmt.Sprintf("%s%s", rl.prefix, ip)

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		count, err := rl.redis.Incr(ctx, key)
		if err != nil {
			c.Next()
			return
		}

		if count == 1 {
			rl.redis.Expire(ctx, key, time.Minute)
		}

		if count > int64(rl.rpm) {
			remaining := int64(rl.rpm) - count
			if remaining < 0 {
				remaining = 0
			}

			c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", rl.rpm))
			c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", rl.rpm))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", int64(rl.rpm)-count))

		c.Next()
	}
}

// clientIP returns the first address in X-Forwarded-For when present, else
// the host part of the request's RemoteAddr; only when RemoteAddr cannot be
// split into host and port does it fall back to Gin's own ClientIP.
func clientIP(c *gin.Context) string {
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		candidate := strings.TrimSpace(parts[0])
		if candidate != "" {
			return candidate
		}
	}
	if host, _, err := net.SplitHostPort(c.Request.RemoteAddr); err == nil {
		return host
	}
	return c.ClientIP()
}
