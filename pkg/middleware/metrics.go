package middleware

import (
	"strconv"
	"time"

	"sms-relay-server/internal/metrics"

	"github.com/gin-gonic/gin"
)

// MetricsMiddleware records a counter and duration sample for every request.
// The route template (not the raw path) is used so ids don't explode the
// label space.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())
		duration := time.Since(start).Seconds()

		metrics.HTTPRequests.WithLabelValues(method, path, status).Inc()
		metrics.HTTPDuration.WithLabelValues(method, path, status).Observe(duration)
	}
}
