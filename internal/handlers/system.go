package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/buildsim/osremote/internal/executor"
	"github.com/buildsim/osremote/internal/metrics"
	"github.com/buildsim/osremote/internal/version"
)

// SystemHandler serves health and host metrics endpoints.
type SystemHandler struct {
	executor *executor.Executor
}

// NewSystemHandler creates a SystemHandler.
func NewSystemHandler(ex *executor.Executor) *SystemHandler {
	return &SystemHandler{executor: ex}
}

// Health is the liveness endpoint.
// GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":           "ok",
		"version":          version.Version,
		"active_processes": h.executor.ActiveCount(),
	})
}

// Metrics returns a snapshot of host CPU, memory, uptime and load.
// GET /api/system
func (h *SystemHandler) Metrics(c *gin.Context) {
	c.JSON(http.StatusOK, metrics.Collect())
}

// Version returns build information.
// GET /api/version
func Version(c *gin.Context) {
	c.JSON(http.StatusOK, version.Info())
}
