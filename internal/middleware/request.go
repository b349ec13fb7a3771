package middleware

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tour-booking/internal/logger"
	"github.com/iliyamo/tour-booking/internal/metrics"
)

// RequestID reuses an incoming X-Request-ID or generates a UUID, echoes it
// back and stores it in the request context for logger.Ctx.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" || len(id) > 128 {
				id = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, id)
			c.SetRequest(req.WithContext(logger.WithRequestID(req.Context(), id)))
			return next(c)
		}
	}
}

// RequestLog logs one line per request and records the Prometheus request
// metrics.  Errors are handed to the HTTP error handler here so that the
// logged status is the one the client receives.
func RequestLog() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			took := time.Since(start)

			req := c.Request()
			res := c.Response()
			metrics.ObserveRequest(c.Path(), req.Method, res.Status, took)

			l := logger.Ctx(req.Context())
			ev := l.Info()
			switch {
			case res.Status >= 500:
				ev = l.Error()
			case res.Status >= 400:
				ev = l.Warn()
			}
			if err != nil {
				ev = ev.Err(err)
			}
			ev.Str("method", req.Method).
				Str("path", req.URL.Path).
				Str("route", c.Path()).
				Int("status", res.Status).
				Int64("bytes", res.Size).
				Dur("latency", took).
				Str("ip", c.RealIP()).
				Str("user_id", userID(c)).
				Msg("request")
			return nil
		}
	}
}
