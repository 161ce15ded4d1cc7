package api

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// runIDKey is the gin context key under which Bootstrap stores the id of the
// run it started.
const runIDKey = "pipestack.run_id"

// polled reports whether path is hit by liveness or readiness checks.
func polled(path string) bool {
	switch path {
	case "/health", "/ready":
		return true
	}
	return false
}

// requestAttrs are the attributes shared by the request and panic logs.
func requestAttrs(c *gin.Context) []any {
	attrs := []any{
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
	}
	if id := c.GetString(runIDKey); id != "" {
		attrs = append(attrs, "run_id", id)
	}
	return attrs
}

// Recovery turns a handler panic into a 500 and logs the stack.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				attrs := append(requestAttrs(c), "panic", r, "stack", string(debug.Stack()))
				logger.ErrorContext(c.Request.Context(), "panic recovered", attrs...)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"status": "error",
					"error":  "internal server error",
				})
			}
		}()
		c.Next()
	}
}

// Tracing starts an OTEL server span per request. Liveness and readiness
// polls are not traced.
func Tracing(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName, otelgin.WithFilter(func(r *http.Request) bool {
		return !polled(r.URL.Path)
	}))
}

// RequestLogger logs every request once it has been served. Requests that
// started a bootstrap carry its run_id; liveness and readiness polls log at
// debug.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelInfo
		if polled(c.Request.URL.Path) {
			level = slog.LevelDebug
		}
		attrs := append(requestAttrs(c),
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
		logger.Log(c.Request.Context(), level, "request", attrs...)
	}
}
