// Package job tracks asynchronous work items through a small state machine
// and runs them inline or on a worker pool behind one submit/poll contract.
package job

import (
	"encoding/json"
	"time"
)

// State is the lifecycle position of a job.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCancelled:
		return true
	}
	return false
}

// Job is a unit of asynchronous work. ResultRef is set only when the job
// succeeded; ErrorDetail only when it failed. Requeued marks that the job
// already got its one second chance after a stalled worker.
type Job struct {
	ID          string
	Kind        string
	State       State
	SubmittedBy string
	Payload     json.RawMessage
	ResultRef   *string
	ErrorDetail *string
	Requeued    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	HeartbeatAt *time.Time
}

// VisibleTo reports whether the given identity may observe the job.
// Admin visibility is decided by the caller.
func (j *Job) VisibleTo(identity string) bool {
	return j.SubmittedBy == identity
}
