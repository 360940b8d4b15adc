package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/robjohncolson/statrelay/internal/monitoring"
	"github.com/robjohncolson/statrelay/pkg/metrics"
)

// Metrics records request latency for Prometheus and feeds the health
// monitor's rolling window.
func Metrics(recorder *monitoring.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start)
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		status := c.Writer.Status()
		metrics.APILatency.WithLabelValues(c.Request.Method, path, strconv.Itoa(status)).Observe(duration.Seconds())

		if recorder != nil {
			recorder.ObserveRequest(duration, status >= 500)
		}
	}
}
