package core

import (
	"errors"
	"fmt"
)

var (
	// ErrConcurrencyConflict rejects a trigger while another run is still
	// running for the same target. Triggers are rejected, never queued.
	ErrConcurrencyConflict = errors.New("failover run already in progress")

	// ErrRunNotFound is returned by run stores for unknown run IDs.
	ErrRunNotFound = errors.New("run not found")

	// ErrWorkflowTimeout marks a run that exceeded its configured bound.
	ErrWorkflowTimeout = errors.New("workflow timeout exceeded")
)

// TaskExecutionError wraps an activation sub-step that exhausted its retry
// budget. The workflow records it as the run's failure reason.
type TaskExecutionError struct {
	Task     string
	Attempts int
	Err      error
}

func (e *TaskExecutionError) Error() string {
	return fmt.Sprintf("task %s failed after %d attempts: %v", e.Task, e.Attempts, e.Err)
}

func (e *TaskExecutionError) Unwrap() error {
	return e.Err
}
