package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"mewayz-notifications/internal/logging"
)

const requestIDHeader = "X-Request-ID"

// RequestLoggingMiddleware tags each request with an id and logs its outcome.
func RequestLoggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header(requestIDHeader, requestID)

		c.Next()

		logger.Request(requestID).
			WithField("status", c.Writer.Status()).
			WithField("latency", time.Since(start).String()).
			Infof("Request: %s %s", c.Request.Method, c.Request.URL.Path)
	}
}
