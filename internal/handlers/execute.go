// Package handlers exposes the execution engine over HTTP.
package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/buildsim/osremote/internal/executor"
	"github.com/buildsim/osremote/internal/services"
)

// ExecuteHandler serves synchronous and asynchronous command execution.
type ExecuteHandler struct {
	executor *executor.Executor
	history  *services.HistoryService
}

// NewExecuteHandler creates an ExecuteHandler.
func NewExecuteHandler(ex *executor.Executor, history *services.HistoryService) *ExecuteHandler {
	return &ExecuteHandler{executor: ex, history: history}
}

type executeRequest struct {
	Command         string            `json:"command" binding:"required"`
	Args            []string          `json:"args"`
	TimeoutMS       int64             `json:"timeout_ms"`
	MemoryLimitMB   int               `json:"memory_limit_mb"`
	CPULimitPercent float64           `json:"cpu_limit_percent"`
	Cwd             string            `json:"cwd"`
	Env             map[string]string `json:"env"`
	DiscardOutput   bool              `json:"discard_output"`
	Nice            int               `json:"nice"`
}

func (r *executeRequest) toEngine() (executor.Command, executor.Options) {
	cmd := executor.Command{
		Name: r.Command,
		Args: r.Args,
		Dir:  r.Cwd,
		Env:  r.Env,
	}
	opts := executor.Options{
		Timeout:         time.Duration(r.TimeoutMS) * time.Millisecond,
		MemoryLimitMB:   r.MemoryLimitMB,
		CPULimitPercent: r.CPULimitPercent,
		DiscardOutput:   r.DiscardOutput,
		Nice:            r.Nice,
	}
	return cmd, opts
}

type executeResponse struct {
	Success         bool   `json:"success"`
	ExitCode        *int   `json:"exit_code,omitempty"`
	Stdout          string `json:"stdout"`
	Stderr          string `json:"stderr"`
	ExecutionTimeMS int64  `json:"execution_time_ms"`
	Error           string `json:"error,omitempty"`
	Category        string `json:"category,omitempty"`
}

func toResponse(res executor.Result) executeResponse {
	return executeResponse{
		Success:         res.Success,
		ExitCode:        res.ExitCode,
		Stdout:          res.Stdout,
		Stderr:          res.Stderr,
		ExecutionTimeMS: res.Duration.Milliseconds(),
		Error:           res.Err,
		Category:        string(res.Category),
	}
}

// Run executes a command and blocks until it is terminal.
// POST /api/execute
//
// Every engine outcome, including a validation rejection, is a 200 with the
// outcome in the body; non-200 means the request itself was malformed.
func (h *ExecuteHandler) Run(c *gin.Context) {
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cmd, opts := req.toEngine()
	res := h.executor.Execute(c.Request.Context(), cmd, opts)

	h.record(uuid.New().String(), cmd, res)

	c.JSON(http.StatusOK, toResponse(res))
}

// StartAsync launches a command in the background and returns its id for
// live streaming.
// POST /api/executions
func (h *ExecuteHandler) StartAsync(c *gin.Context) {
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cmd, opts := req.toEngine()
	// Detached from the request context: the caller disconnecting must not
	// kill a simulation it intentionally started in the background.
	id, resultCh := h.executor.Start(context.Background(), cmd, opts)

	go func() {
		res := <-resultCh
		h.record(id, cmd, res)
	}()

	c.JSON(http.StatusAccepted, gin.H{"id": id})
}

func (h *ExecuteHandler) record(id string, cmd executor.Command, res executor.Result) {
	if h.history == nil {
		return
	}
	if err := h.history.Record(id, cmd, res, statusFor(res)); err != nil {
		log.Printf("[ExecuteHandler] failed to record execution %s: %v", id, err)
	}
}

// statusFor maps a terminal result back to the engine status it implies.
func statusFor(res executor.Result) executor.Status {
	switch res.Category {
	case executor.CategoryTimeout:
		return executor.StatusTimedOut
	case executor.CategoryMemory, executor.CategoryCPU:
		return executor.StatusResourceExceeded
	case executor.CategoryValidation, executor.CategorySpawn, executor.CategoryProcess:
		return executor.StatusFailed
	}
	return executor.StatusCompleted
}
