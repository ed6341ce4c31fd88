package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/buildsim/osremote/internal/services"
)

// HistoryHandler serves persisted execution records.
type HistoryHandler struct {
	history *services.HistoryService
}

// NewHistoryHandler creates a HistoryHandler.
func NewHistoryHandler(history *services.HistoryService) *HistoryHandler {
	return &HistoryHandler{history: history}
}

// List returns past executions, newest first.
// GET /api/executions?limit=50&offset=0
func (h *HistoryHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	records, err := h.history.List(limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":      len(records),
		"executions": records,
	})
}

// Get returns one execution record by id.
// GET /api/executions/:id
func (h *HistoryHandler) Get(c *gin.Context) {
	id := c.Param("id")

	record, err := h.history.GetByID(id)
	if err != nil {
		if errors.Is(err, services.ErrExecutionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "execution not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, record)
}
