package app

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/snospb/vk-sno-bot/internal/ctxutil"
	"github.com/snospb/vk-sno-bot/internal/logger"
)

// requestIDHeader carries the request ID in both directions.
const requestIDHeader = "X-Request-Id"

// securityHeadersMiddleware adds security headers to responses.
func securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Content-Security-Policy", "default-src 'none'")
		c.Header("X-Permitted-Cross-Domain-Policies", "none")
		c.Next()
	}
}

// requestID returns the caller's request ID, or a new one.
func requestID(c *gin.Context) string {
	for _, h := range []string{requestIDHeader, "X-Correlation-Id"} {
		if v := c.GetHeader(h); v != "" {
			return v
		}
	}
	return uuid.NewString()
}

// loggingMiddleware tags each request with an ID and logs it with
// status-based levels: 5xx=Error, 4xx=Warn, 404=Debug, 3xx/2xx=Debug.
func loggingMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		id := requestID(c)
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(ctxutil.WithRequestID(c.Request.Context(), id))

		c.Next()

		status := c.Writer.Status()
		entry := log.WithRequestID(id).
			WithField("http_method", method).
			WithField("http_path", path).
			WithField("http_status", status).
			WithField("duration_ms", time.Since(start).Milliseconds()).
			WithField("client_ip", c.ClientIP())

		switch {
		case status >= 500:
			entry.Error("HTTP request failed")
		case status == 404:
			entry.Debug("HTTP request not found")
		case status >= 400:
			entry.Warn("HTTP request rejected")
		default:
			entry.Debug("HTTP request completed")
		}
	}
}
