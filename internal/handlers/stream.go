package handlers

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/buildsim/osremote/internal/executor"
	"github.com/buildsim/osremote/internal/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // TODO: Add proper origin validation
	},
}

// StreamHandler streams live execution output over WebSocket.
type StreamHandler struct {
	executor *executor.Executor
	history  *services.HistoryService
}

// NewStreamHandler creates a StreamHandler.
func NewStreamHandler(ex *executor.Executor, history *services.HistoryService) *StreamHandler {
	return &StreamHandler{executor: ex, history: history}
}

type streamEvent struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// HandleWebSocket attaches a client to a running execution's output stream.
// GET /api/executions/:id/ws
//
// For an execution that already finished, the final status is looked up in
// history and sent as a single complete event before closing.
func (h *StreamHandler) HandleWebSocket(c *gin.Context) {
	id := c.Param("id")

	if !h.executor.IsActive(id) {
		h.replayFinished(c, id)
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[Stream] failed to upgrade to WebSocket: %v", err)
		return
	}
	defer func() { _ = ws.Close() }()

	ch := h.executor.Subscribe(id)
	defer h.executor.Unsubscribe(id, ch)

	log.Printf("[Stream] client attached to execution %s", id)

	// Detect the client going away so we stop draining the subscription.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-clientGone:
			log.Printf("[Stream] client detached from execution %s", id)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			event := toEvent(msg)
			if err := ws.WriteJSON(event); err != nil {
				log.Printf("[Stream] write error on execution %s: %v", id, err)
				return
			}
			if event.Type == "complete" {
				return
			}
		}
	}
}

// toEvent splits the internal "output:<line>" / "complete:<status>" framing
// into a typed client event.
func toEvent(msg string) streamEvent {
	if data, ok := strings.CutPrefix(msg, "output:"); ok {
		return streamEvent{Type: "output", Data: data}
	}
	if data, ok := strings.CutPrefix(msg, "complete:"); ok {
		return streamEvent{Type: "complete", Data: data}
	}
	return streamEvent{Type: "output", Data: msg}
}

func (h *StreamHandler) replayFinished(c *gin.Context, id string) {
	if h.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "execution not found"})
		return
	}

	record, err := h.history.GetByID(id)
	if err != nil {
		if errors.Is(err, services.ErrExecutionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "execution not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[Stream] failed to upgrade to WebSocket: %v", err)
		return
	}
	defer func() { _ = ws.Close() }()

	if !replayLines(ws, "output", record.Stdout) {
		return
	}
	if !replayLines(ws, "stderr", record.Stderr) {
		return
	}
	_ = ws.WriteJSON(streamEvent{Type: "complete", Data: record.Status})
}

func replayLines(ws *websocket.Conn, eventType, text string) bool {
	if text == "" {
		return true
	}
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		if err := ws.WriteJSON(streamEvent{Type: eventType, Data: line}); err != nil {
			return false
		}
	}
	return true
}
