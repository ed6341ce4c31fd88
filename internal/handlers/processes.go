package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/buildsim/osremote/internal/executor"
)

// ProcessHandler serves the registry of currently running executions.
type ProcessHandler struct {
	executor *executor.Executor
}

// NewProcessHandler creates a ProcessHandler.
func NewProcessHandler(ex *executor.Executor) *ProcessHandler {
	return &ProcessHandler{executor: ex}
}

// List returns every active execution.
// GET /api/processes
func (h *ProcessHandler) List(c *gin.Context) {
	procs := h.executor.ListActive()
	c.JSON(http.StatusOK, gin.H{
		"count":     len(procs),
		"processes": procs,
	})
}

// Count returns only the number of active executions.
// GET /api/processes/count
func (h *ProcessHandler) Count(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"count": h.executor.ActiveCount()})
}

// KillAll terminates every active execution.
// POST /api/processes/kill
func (h *ProcessHandler) KillAll(c *gin.Context) {
	killed := h.executor.KillAll()
	c.JSON(http.StatusOK, gin.H{"killed": killed})
}
