package ratelimit

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"phrasehunt/internal/gameerr"
	appmetrics "phrasehunt/internal/metrics"
)

// Middleware throttles requests per X-User-Id (or client IP when absent).
func Middleware(l Limiter, action string, window time.Duration, max int) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get("X-User-Id")
			if id == "" {
				id = c.RealIP()
			}

			res := l.Check(c.Request().Context(), action, id, window, max)
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			if !res.Allowed {
				appmetrics.RateLimitDroppedTotal.WithLabelValues(action).Inc()
				return gameerr.WithMetadata(gameerr.CodeRateLimited, "Rate limit exceeded", map[string]any{
					"remaining": res.Remaining,
					"resetTime": res.ResetTime,
				})
			}
			return next(c)
		}
	}
}
