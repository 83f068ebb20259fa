package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/plexwatch/histview/internal/logging"
	"github.com/plexwatch/histview/internal/metrics"
)

const RequestIDHeader = "X-Request-ID"

// RequestID assigns every request a unique ID, echoed back in the
// response headers for correlation.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Writer.Header().Set(RequestIDHeader, requestID)
		c.Next()
	}
}

// Logger middleware logs request details and records HTTP metrics
func Logger(log *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		reqLog := log
		if requestID, ok := c.Get("request_id"); ok {
			if id, ok := requestID.(string); ok {
				reqLog = log.WithRequestID(id)
			}
		}
		reqLog.LogHTTPRequest(c.Request.Method, path, c.ClientIP(), status, latency)

		metrics.RecordHTTPRequest(c.Request.Method, c.FullPath(), strconv.Itoa(status), latency.Seconds())
	}
}
