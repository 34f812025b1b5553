package security

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

const (
	GateKeyHeader = "X-Gate-Key"

	antiBotLimit = 30
)

type RateLimiter struct {
	redis     redis.Cmdable
	gateLimit int64
	now       func() time.Time
}

func NewRateLimiter(redisClient redis.Cmdable, gateLimit int) *RateLimiter {
	return &RateLimiter{
		redis:     redisClient,
		gateLimit: int64(gateLimit),
		now:       time.Now,
	}
}

// allow counts one hit against a fixed window. Redis errors fail open so a
// cache outage never stops the gates.
func (r *RateLimiter) allow(ctx context.Context, key string, limit int64, window time.Duration) bool {
	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		slog.Warn("rate limit check skipped", "key", key, "error", err)
		return true
	}
	if count == 1 {
		r.redis.Expire(ctx, key, window)
	}
	return count <= limit
}

// GateRateLimit limits scans per gate per minute.
func (r *RateLimiter) GateRateLimit() func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		if r.gateLimit <= 0 {
			return e.Next()
		}

		gateID := e.Request.PathValue("gateID")
		if gateID == "" {
			gateID = e.RemoteIP()
		}
		key := fmt.Sprintf("ratelimit:gate:%s:%d", gateID, r.now().Unix()/60)

		if !r.allow(e.Request.Context(), key, r.gateLimit, time.Minute) {
			return e.JSON(http.StatusTooManyRequests, map[string]string{
				"error": "Rate limit exceeded. Please try again later.",
			})
		}
		return e.Next()
	}
}

// Anti-bot protection
func (r *RateLimiter) AntiBotMiddleware() func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		userAgent := e.Request.Header.Get("User-Agent")
		if r.isSuspiciousUserAgent(userAgent) {
			return e.JSON(http.StatusForbidden, map[string]string{
				"error": "Access denied",
			})
		}

		key := fmt.Sprintf("antibot:%s", e.RemoteIP())
		if !r.allow(e.Request.Context(), key, antiBotLimit, time.Minute) {
			return e.JSON(http.StatusTooManyRequests, map[string]string{
				"error": "Too many requests",
			})
		}

		return e.Next()
	}
}

func (r *RateLimiter) isSuspiciousUserAgent(ua string) bool {
	suspicious := []string{"bot", "crawler", "spider", "scraper"}
	for _, pattern := range suspicious {
		if strings.Contains(strings.ToLower(ua), pattern) {
			return true
		}
	}
	return false
}

// RequireGateKey rejects gate requests that do not carry the shared gate key.
// An empty key disables the check.
func RequireGateKey(key string) func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		if key == "" {
			return e.Next()
		}
		got := e.Request.Header.Get(GateKeyHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			return e.JSON(http.StatusUnauthorized, map[string]string{
				"error": "invalid gate key",
			})
		}
		return e.Next()
	}
}
