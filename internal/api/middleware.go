package api

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/sandboxforge/orchestrator/internal/metrics"
)

// authMiddleware enforces the shared-secret header (§4.5). An empty
// configured apiKey opts the deployment into unauthenticated mode for local
// development, logging a warning on every such request.
func authMiddleware(apiKey, headerName string, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if apiKey == "" {
				logger.Warn().Str("path", c.Path()).Msg("no api_key configured; accepting request unauthenticated")
				return next(c)
			}

			provided := c.Request().Header.Get(headerName)
			if provided == "" {
				return writeError(c, errUnauthenticated())
			}
			if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
				return writeError(c, errForbidden())
			}
			return next(c)
		}
	}
}

// requestLogMiddleware emits one structured log line per request (§4.5),
// including the sandbox id path parameter when present.
func requestLogMiddleware(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}

			metrics.RequestsTotal.WithLabelValues(c.Request().Method, c.Path(), strconv.Itoa(status)).Inc()
			metrics.RequestDuration.WithLabelValues(c.Request().Method, c.Path()).Observe(duration.Seconds())

			event := logger.Info()
			if status >= http.StatusInternalServerError {
				event = logger.Error()
			}
			event.
				Str("method", c.Request().Method).
				Str("path", c.Path()).
				Int("status", status).
				Dur("duration", duration).
				Str("sandbox_id", c.Param("id")).
				Str("user_id", requestUserFrom(c)).
				Msg("request")

			return err
		}
	}
}
