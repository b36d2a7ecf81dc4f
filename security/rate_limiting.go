package security

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/hook"
	"github.com/redis/go-redis/v9"
)

const (
	JoinRateLimitID = "queueTicketJoinRateLimit"
	AntiBotID       = "queueTicketAntiBot"

	window = time.Minute
)

// RateLimiter counts requests per key in fixed one minute windows kept in
// Redis. A Redis failure lets the request through.
type RateLimiter struct {
	redis *redis.Client
	limit int64
}

func NewRateLimiter(redisClient *redis.Client, perMinute int) *RateLimiter {
	return &RateLimiter{redis: redisClient, limit: int64(perMinute)}
}

// Allow reports whether key is still under the per-minute limit.
func (r *RateLimiter) Allow(ctx context.Context, key string) bool {
	if r == nil || r.redis == nil || r.limit <= 0 {
		return true
	}

	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		slog.Warn("rate limiter unavailable, allowing request", "key", key, "error", err)
		return true
	}
	if count == 1 {
		if err := r.redis.Expire(ctx, key, window).Err(); err != nil {
			slog.Warn("failed to set rate limit window", "key", key, "error", err)
		}
	}
	return count <= r.limit
}

// JoinRateLimit limits how often one user may take a ticket.
func (r *RateLimiter) JoinRateLimit() *hook.Handler[*core.RequestEvent] {
	return &hook.Handler[*core.RequestEvent]{
		Id: JoinRateLimitID,
		Func: func(e *core.RequestEvent) error {
			var id string
			if e.Auth != nil {
				id = e.Auth.Id
			} else {
				id = e.RealIP()
			}

			if !r.Allow(e.Request.Context(), fmt.Sprintf("ratelimit:join:%s", id)) {
				return apis.NewTooManyRequestsError("Rate limit exceeded. Please try again later.", nil)
			}
			return e.Next()
		},
	}
}

// AntiBot rejects crawler user agents and throttles per client IP.
func (r *RateLimiter) AntiBot(perMinute int) *hook.Handler[*core.RequestEvent] {
	ipLimiter := &RateLimiter{redis: r.redis, limit: int64(perMinute)}

	return &hook.Handler[*core.RequestEvent]{
		Id: AntiBotID,
		Func: func(e *core.RequestEvent) error {
			if isSuspiciousUserAgent(e.Request.Header.Get("User-Agent")) {
				return apis.NewForbiddenError("Access denied", nil)
			}

			if !ipLimiter.Allow(e.Request.Context(), fmt.Sprintf("antibot:%s", e.RealIP())) {
				return apis.NewTooManyRequestsError("Too many requests", nil)
			}
			return e.Next()
		},
	}
}

func isSuspiciousUserAgent(ua string) bool {
	ua = strings.ToLower(ua)
	for _, pattern := range []string{"bot", "crawler", "spider", "scraper"} {
		if strings.Contains(ua, pattern) {
			return true
		}
	}
	return false
}
