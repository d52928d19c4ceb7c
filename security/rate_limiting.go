package security

import (
	"context"
	"fmt"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

type RateLimiter struct {
	redis *redis.Client
}

func NewRateLimiter(redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{redis: redisClient}
}

// Limit returns a route middleware allowing `limit` requests per window per
// caller. Authenticated requests are keyed by user id, anonymous ones (the
// webhook) by source IP. Redis hiccups fail open: throttling is protection,
// not an invariant.
func (r *RateLimiter) Limit(scope string, limit int, window time.Duration) func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		if !r.allow(e.Request.Context(), r.keyFor(scope, e), limit, window) {
			return apis.NewTooManyRequestsError("Rate limit exceeded. Please try again later.", nil)
		}
		return e.Next()
	}
}

func (r *RateLimiter) allow(ctx context.Context, key string, limit int, window time.Duration) bool {
	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		return true
	}
	if count == 1 {
		r.redis.Expire(ctx, key, window)
	}
	return count <= int64(limit)
}

func (r *RateLimiter) keyFor(scope string, e *core.RequestEvent) string {
	if e.Auth != nil {
		return fmt.Sprintf("ratelimit:%s:user:%s", scope, e.Auth.Id)
	}
	return fmt.Sprintf("ratelimit:%s:ip:%s", scope, e.RealIP())
}
