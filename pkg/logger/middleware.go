package logger

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ContextKey is the gin context key holding the request-scoped logger
const ContextKey = "logger"

// Middleware returns a Gin middleware function that logs requests.
// It reuses the request id set by an earlier middleware when present.
func Middleware(logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetString("requestID")
		if requestID == "" {
			requestID = uuid.New().String()
			c.Header("X-Request-ID", requestID)
			c.Set("requestID", requestID)
		}

		reqLogger := logger.WithRequestID(requestID)
		c.Set(ContextKey, reqLogger)

		start := time.Now()
		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		path := c.Request.URL.Path
		method := c.Request.Method

		if subject := c.GetString("adminSubject"); subject != "" {
			reqLogger = reqLogger.WithAdmin(subject)
		}
		reqLogger.LogRequest(method, path, status, latency)

		for _, err := range c.Errors {
			reqLogger.LogError(err.Err, "request error",
				"method", method,
				"path", path,
				"error_type", err.Type,
			)
		}
	}
}

// FromContext returns the request-scoped logger, or fallback when none is set
func FromContext(c *gin.Context, fallback *Logger) *Logger {
	if v, ok := c.Get(ContextKey); ok {
		if l, ok := v.(*Logger); ok {
			return l
		}
	}
	return fallback
}
