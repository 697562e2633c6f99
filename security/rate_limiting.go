package security

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window request counter kept in Redis so that every
// instance shares the same budget.
type RateLimiter struct {
	redis  redis.Cmdable
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRateLimiter(redisClient redis.Cmdable, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		redis:  redisClient,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

func (r *RateLimiter) key(scope, id string) string {
	bucket := r.now().Unix() / int64(r.window.Seconds())
	return fmt.Sprintf("ratelimit:%s:%s:%d", scope, id, bucket)
}

// Allow counts one request for id and reports whether it is within the limit.
func (r *RateLimiter) Allow(ctx context.Context, scope, id string) (bool, error) {
	key := r.key(scope, id)

	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		r.redis.Expire(ctx, key, r.window)
	}
	return count <= int64(r.limit), nil
}

// Limit rejects requests over the budget with 429. Redis failures let the
// request through.
func (r *RateLimiter) Limit(scope string) func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		ok, err := r.Allow(e.Request.Context(), scope, e.RealIP())
		if err != nil {
			slog.Warn("Rate limiter unavailable", "scope", scope, "error", err)
			return e.Next()
		}
		if !ok {
			return e.JSON(http.StatusTooManyRequests, map[string]string{
				"error": "Rate limit exceeded. Please try again later.",
			})
		}
		return e.Next()
	}
}

// BlockBots rejects obvious crawler user agents.
func BlockBots(e *core.RequestEvent) error {
	if IsSuspiciousUserAgent(e.Request.Header.Get("User-Agent")) {
		return e.JSON(http.StatusForbidden, map[string]string{
			"error": "Access denied",
		})
	}
	return e.Next()
}

func IsSuspiciousUserAgent(ua string) bool {
	suspicious := []string{"bot", "crawler", "spider", "scraper"}
	for _, pattern := range suspicious {
		if strings.Contains(strings.ToLower(ua), pattern) {
			return true
		}
	}
	return false
}
