// Package middleware provides Echo middleware for logging, metrics and security.
package middleware

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"

	"vault-gateway/internal/service"
)

// RequestLogger returns an Echo middleware that logs each request with slog.
// operationHeader is read before the handler runs, since the gateway handler
// removes it from the request.
func RequestLogger(logger *slog.Logger, operationHeader string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			operation := c.Request().Header.Get(operationHeader)

			err := next(c)

			req := c.Request()
			res := c.Response()

			attrs := []any{
				"method", req.Method,
				"path", req.URL.Path,
				"status", res.Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", res.Header().Get(echo.HeaderXRequestID),
				"remote_ip", c.RealIP(),
				"bytes_out", res.Size,
			}
			if operation != "" {
				attrs = append(attrs, "operation", operation)
			}
			if kind := res.Header().Get(service.ErrorKindHeader); kind != "" {
				attrs = append(attrs, "error_kind", kind)
				logger.Warn("request", attrs...)
				return err
			}

			logger.Info("request", attrs...)
			return err
		}
	}
}
