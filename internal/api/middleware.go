package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/masa-finance/timeline-worker/internal/config"
)

const (
	HealthCheckPath    = "/healthz"
	ReadinessCheckPath = "/readyz"
	StreamPath         = "/stream"
)

// APIKeyAuthMiddleware returns an Echo middleware that checks for the API key in the request headers.
// Browsers cannot set headers on a websocket handshake, so the stream endpoint
// also accepts the key as an api_key query parameter.
func APIKeyAuthMiddleware(jc config.JobConfiguration) echo.MiddlewareFunc {
	apiKey := jc.GetString("api_key", "")
	if apiKey == "" {
		// No API key set; allow all requests (no-op)
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return next
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path
			if path == HealthCheckPath || path == ReadinessCheckPath {
				return next(c)
			}

			if req.Header.Get("Authorization") == "Bearer "+apiKey {
				return next(c)
			}
			if req.Header.Get("X-API-Key") == apiKey {
				return next(c)
			}
			if path == StreamPath && req.URL.Query().Get("api_key") == apiKey {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusUnauthorized, "missing or invalid API key")
		}
	}
}

// HealthMetricsMiddleware tracks job API success and error rates for /readyz
func HealthMetricsMiddleware(healthMetrics *HealthMetrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			if path == HealthCheckPath || path == ReadinessCheckPath {
				return next(c)
			}

			err := next(c)

			// Only job API calls count; 4xx are the caller's problem, not ours.
			if strings.HasPrefix(path, "/job/") {
				statusCode := c.Response().Status
				if statusCode >= 500 {
					healthMetrics.RecordError()
				} else if statusCode >= 200 && statusCode < 400 {
					healthMetrics.RecordSuccess()
				}
			}

			return err
		}
	}
}
