package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/robjohncolson/statrelay/internal/monitoring"
	"github.com/robjohncolson/statrelay/pkg/response"
)

// HealthHandler surfaces the health monitor's latest report.
type HealthHandler struct {
	monitor *monitoring.Monitor
}

// NewHealthHandler constructs a health handler.
func NewHealthHandler(monitor *monitoring.Monitor) *HealthHandler {
	return &HealthHandler{monitor: monitor}
}

// Healthz reports readiness. Degraded still serves traffic, so only an
// unhealthy relay returns 503.
func (h *HealthHandler) Healthz(c *gin.Context) {
	report := h.monitor.Report()

	if report.Status == monitoring.StatusUnhealthy {
		c.JSON(http.StatusServiceUnavailable, response.Response{Data: report})
		return
	}
	response.Success(c, http.StatusOK, report)
}
