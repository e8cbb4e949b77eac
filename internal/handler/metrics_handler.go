package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/dicampus-admin/internal/service"
)

type metricsSource interface {
	Handler() http.Handler
	Snapshot() service.MetricsSnapshot
}

// ReadinessCheck reports a component's sync status.
type ReadinessCheck struct {
	Name   string
	Status func() service.SyncStatus
}

// MetricsHandler exposes observability endpoints.
type MetricsHandler struct {
	metrics metricsSource
	checks  []ReadinessCheck
}

// NewMetricsHandler constructs a metrics handler.
func NewMetricsHandler(metrics metricsSource, checks ...ReadinessCheck) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, checks: checks}
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Health responds with a generic OK payload for liveness usage.
func (h *MetricsHandler) Health(c *gin.Context) {
	body := gin.H{"status": "ok"}
	if h.metrics != nil {
		body["metrics"] = h.metrics.Snapshot()
	}
	c.JSON(http.StatusOK, body)
}

// Ready reports 200 once every collection has delivered its first snapshot.
func (h *MetricsHandler) Ready(c *gin.Context) {
	collections := make(map[string]service.SyncStatus, len(h.checks))
	ready := true
	for _, check := range h.checks {
		status := check.Status()
		collections[check.Name] = status
		if status != service.SyncReady {
			ready = false
		}
	}
	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "collections": collections})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "collections": collections})
}
