// Package models holds the value types shared between the service layer
// and the HTTP handlers.
package models

import "time"

// ExecutionRecord is the persisted form of one finished execution. Live
// executions belong to the executor's registry; only terminal outcomes are
// written to the database.
type ExecutionRecord struct {
	ID         string    `json:"id"`
	Command    string    `json:"command"`
	Args       []string  `json:"args"`
	Status     string    `json:"status"`
	ExitCode   *int      `json:"exit_code"`
	Stdout     string    `json:"stdout"`
	Stderr     string    `json:"stderr"`
	Error      string    `json:"error,omitempty"`
	Category   string    `json:"category,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}
