package executor

import "time"

// ErrorCategory is the machine-readable class of an execution failure.
// Callers are expected to branch on these, not parse the message text.
type ErrorCategory string

const (
	// CategoryValidation means the command never spawned; fix the inputs and retry.
	CategoryValidation ErrorCategory = "validation"
	// CategorySpawn means the OS could not start the process.
	CategorySpawn ErrorCategory = "spawn"
	// CategoryTimeout means the process exceeded its wall-clock allowance.
	CategoryTimeout ErrorCategory = "timeout"
	// CategoryMemory means the process exceeded its memory ceiling.
	CategoryMemory ErrorCategory = "memory"
	// CategoryCPU means the process exceeded its smoothed CPU ceiling.
	CategoryCPU ErrorCategory = "cpu"
	// CategoryProcess means an unexpected stream or OS error mid-execution.
	CategoryProcess ErrorCategory = "process"
)

// Status is the lifecycle state of one managed execution. Transitions are
// monotonic: once a terminal status is reached the execution never re-enters
// a running state.
type Status string

const (
	// StatusPending indicates the execution is registered but not yet spawned.
	StatusPending Status = "pending"
	// StatusRunning indicates the process is alive.
	StatusRunning Status = "running"
	// StatusTimingOut indicates the timeout elapsed and termination is underway.
	StatusTimingOut Status = "timing_out"
	// StatusTerminating indicates a resource breach triggered termination.
	StatusTerminating Status = "terminating"
	// StatusCompleted indicates the process ran to completion (any exit code).
	StatusCompleted Status = "completed"
	// StatusTimedOut indicates the process was terminated for overrunning its timeout.
	StatusTimedOut Status = "timed_out"
	// StatusResourceExceeded indicates the process was terminated for a limit breach.
	StatusResourceExceeded Status = "resource_exceeded"
	// StatusFailed indicates validation, spawn, or stream failure.
	StatusFailed Status = "failed"
)

// isTerminal reports whether a status ends the execution's lifecycle.
func isTerminal(s Status) bool {
	switch s {
	case StatusCompleted, StatusTimedOut, StatusResourceExceeded, StatusFailed:
		return true
	}
	return false
}

// Command is an immutable specification of one external invocation. The
// arguments are always passed to the OS as a discrete vector; there is no
// field for a shell string on purpose.
type Command struct {
	// Name is the executable, as a bare allowlisted name or a path to one.
	Name string
	// Args is the ordered argument vector.
	Args []string
	// Dir is the working directory. Empty means inherit.
	Dir string
	// Env holds environment overrides layered on the restricted base.
	Env map[string]string
}

// Options is the per-invocation execution policy. The zero value means:
// default timeout, no resource limits, output captured, normal priority.
type Options struct {
	// Timeout is the wall-clock allowance. 0 applies the engine default.
	Timeout time.Duration
	// MemoryLimitMB is the resident-set ceiling in megabytes. 0 means unbounded.
	MemoryLimitMB int
	// CPULimitPercent is the smoothed CPU ceiling, 0-100. 0 means unbounded.
	CPULimitPercent float64
	// DiscardOutput sends the child's output to the null device instead of
	// capturing it.
	DiscardOutput bool
	// Nice is a scheduling priority hint, applied best-effort after spawn.
	Nice int
}

// Result is the terminal outcome of one execution. Every failure mode,
// including validation, is reported here rather than as a Go error, so
// callers have exactly one handling path.
type Result struct {
	// Success is true only for a clean zero exit with no timeout or breach.
	Success bool
	// ExitCode is nil when the process never produced one (not spawned, or
	// killed before exiting on its own).
	ExitCode *int
	// Stdout and Stderr are the captured streams, bounded by the engine's
	// output cap.
	Stdout string
	Stderr string
	// Duration is the elapsed wall time of the whole execution.
	Duration time.Duration
	// Err is a short human-readable message, empty on success.
	Err string
	// Category classifies engine failures. It is empty on success and on a
	// plain non-zero exit, which is the process's own verdict rather than
	// an engine error.
	Category ErrorCategory
}

// ActiveProcess describes one in-flight execution for operational callers.
type ActiveProcess struct {
	ID        string `json:"id"`
	PID       int    `json:"pid"`
	RuntimeMS int64  `json:"runtime_ms"`
}
