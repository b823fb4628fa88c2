package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fleetwatch/internal/metrics"
)

// HealthCheck reports a dependency failure; nil means healthy.
type HealthCheck func() error

type HealthHandler struct {
	tracker *metrics.Tracker
	checks  map[string]HealthCheck
}

func NewHealthHandler(tracker *metrics.Tracker, checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{tracker: tracker, checks: checks}
}

// Health is degraded, not failed, while the stream is down: the REST
// snapshot keeps serving.
func (h *HealthHandler) Health(c *gin.Context) {
	m := h.tracker.Snapshot()
	components := gin.H{}
	healthy := true

	for name, check := range h.checks {
		if err := check(); err != nil {
			components[name] = err.Error()
			healthy = false
			continue
		}
		components[name] = "ok"
	}

	status := "healthy"
	switch {
	case !healthy:
		status = "unhealthy"
	case !m.Connected:
		status = "degraded"
	}

	body := gin.H{
		"status":     status,
		"stream":     gin.H{"connected": m.Connected, "last_message_at": m.LastMessageAt, "frames": m.FramesReceived},
		"devices":    m.Devices,
		"components": components,
	}
	if !healthy {
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	c.JSON(http.StatusOK, body)
}
