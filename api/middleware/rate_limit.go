package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/angelmondragon/cartwatch/api/responses"
	pkgerrors "github.com/angelmondragon/cartwatch/pkg/errors"
	"github.com/angelmondragon/cartwatch/pkg/logger"
)

// WindowLimiter counts hits per scope in a fixed window.
type WindowLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RateLimit caps requests to a route across all instances sharing the limiter.
// A nil limiter or a non-positive limit disables the check; limiter failures
// let the request through.
func RateLimit(limiter WindowLimiter, scope string, limit int, window time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil || limit <= 0 || window <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, count, err := limiter.FixedWindowAllow(r.Context(), scope, int64(limit), window)
			if err != nil {
				if logg != nil {
					logg.Error(logg.WithField(r.Context(), "scope", scope), "rate limit check failed", err)
				}
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.New(pkgerrors.CodeRateLimit, "too many requests").
						WithDetails(map[string]any{"scope": scope, "limit": limit, "count": count}))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
