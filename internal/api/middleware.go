package api

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/presence/internal/observability"
)

const requestIDHeader = "X-Request-ID"

// RequestIDMiddleware propagates the caller's X-Request-ID or assigns a new one.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDHeader, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// LoggingMiddleware logs each request with slog and records its latency.
// Health probes and metrics scrapes are only logged at debug level.
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case quietRoute(route):
			level = slog.LevelDebug
		}
		slog.Log(c.Request.Context(), level, "request",
			"request_id", c.GetString(requestIDHeader),
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration", elapsed.String(),
			"ip", c.ClientIP(),
		)

		observability.HTTPRequestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).
			Observe(elapsed.Seconds())
	}
}

func quietRoute(route string) bool {
	return route == "/healthz" || route == "/readyz" || strings.HasPrefix(route, "/metrics")
}
