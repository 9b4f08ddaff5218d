package core

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus describes the lifecycle state of a run.
type RunStatus string

const (
	RunStatusPending    RunStatus = "pending"
	RunStatusRunning    RunStatus = "running"
	RunStatusTerminated RunStatus = "terminated"
	RunStatusFailed     RunStatus = "failed"
	RunStatusCancelled  RunStatus = "cancelled"
)

// RunInfo captures run metadata independent of its step history.
type RunInfo struct {
	ID         string
	Task       string
	Status     RunStatus
	Error      string
	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// NewRunInfo creates pending run metadata with a generated ID.
func NewRunInfo(task string) *RunInfo {
	return &RunInfo{
		ID:        "run-" + uuid.NewString(),
		Task:      task,
		Status:    RunStatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

// Start marks the run as running.
func (r *RunInfo) Start() {
	r.Status = RunStatusRunning
	r.StartedAt = time.Now().UTC()
}

// Terminate marks the run as completed by its termination policy.
func (r *RunInfo) Terminate() {
	r.finish(RunStatusTerminated, "")
}

// Fail marks the run as failed with an error message.
func (r *RunInfo) Fail(msg string) {
	r.finish(RunStatusFailed, msg)
}

// Cancel marks the run as abandoned by its consumer.
func (r *RunInfo) Cancel(msg string) {
	r.finish(RunStatusCancelled, msg)
}

// Done reports whether the run reached a final status.
func (r *RunInfo) Done() bool {
	switch r.Status {
	case RunStatusTerminated, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

func (r *RunInfo) finish(status RunStatus, msg string) {
	if r.Done() {
		return
	}
	r.Status = status
	r.Error = msg
	r.FinishedAt = time.Now().UTC()
}
