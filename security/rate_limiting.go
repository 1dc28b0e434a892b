// Package security holds the request throttling and anti-bot checks that
// run in front of the queue endpoints.
package security

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

type RateLimiter struct {
	redis     *redis.Client
	perMinute int
}

func NewRateLimiter(redisClient *redis.Client, perMinute int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 120
	}
	return &RateLimiter{redis: redisClient, perMinute: perMinute}
}

// Middleware enforces a fixed per-minute request budget per caller.
// Authenticated callers are keyed by user id, everyone else by IP.
func (r *RateLimiter) Middleware() func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		ua := e.Request.Header.Get("User-Agent")
		if isSuspiciousUserAgent(ua) {
			return apis.NewForbiddenError("Access denied", nil)
		}
		if err := r.allow(e.Request.Context(), r.identity(e)); err != nil {
			return err
		}
		return e.Next()
	}
}

// allow counts the request against the caller's one-minute window and
// returns a 429 once the budget is exhausted. A Redis outage disables
// throttling rather than blocking traffic.
func (r *RateLimiter) allow(ctx context.Context, identity string) error {
	key := fmt.Sprintf("ratelimit:%s", identity)

	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		slog.Warn("rate limit check skipped", "error", err)
		return nil
	}
	if count == 1 {
		r.redis.Expire(ctx, key, time.Minute)
	}
	if count > int64(r.perMinute) {
		return apis.NewTooManyRequestsError("Too many requests. Please try again later.", nil)
	}
	return nil
}

func (r *RateLimiter) identity(e *core.RequestEvent) string {
	if e.Auth != nil {
		return "user:" + e.Auth.Id
	}
	host, _, err := net.SplitHostPort(e.Request.RemoteAddr)
	if err != nil {
		return "ip:" + e.Request.RemoteAddr
	}
	return "ip:" + host
}

func isSuspiciousUserAgent(ua string) bool {
	lowered := strings.ToLower(ua)
	for _, pattern := range []string{"bot", "crawler", "spider", "scraper"} {
		if strings.Contains(lowered, pattern) {
			return true
		}
	}
	return false
}
