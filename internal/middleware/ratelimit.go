package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter is the subset of the Redis client the limiter uses.
type Counter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

var _ Counter = (*redis.Client)(nil)

// RateLimit allows limit requests per window for each caller within scope.
// Callers are keyed by user id, or by remote address before auth. A nil
// counter disables limiting. When Redis is unreachable requests pass and the
// failure is logged.
func RateLimit(counter Counter, logger *slog.Logger, scope string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if counter == nil || limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := UserIDFromContext(r.Context())
			if !ok {
				caller = clientIP(r)
			}
			key := fmt.Sprintf("rate_limit:%s:%s", scope, caller)

			ctx := r.Context()
			count, err := counter.Incr(ctx, key).Result()
			if err != nil {
				logger.WarnContext(ctx, "rate limit check failed", slog.String("scope", scope), slog.Any("error", err))
				next.ServeHTTP(w, r)
				return
			}
			if count == 1 {
				if err := counter.Expire(ctx, key, window).Err(); err != nil {
					logger.WarnContext(ctx, "rate limit expiry not set", slog.String("key", key), slog.Any("error", err))
				}
			}
			if count > int64(limit) {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate_limited"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
