package valueobjects

import "fmt"

// JobStatus is the lifecycle state of a background job.
// Jobs move pending -> running -> completed | failed.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// ParseJobStatus validates a status string
func ParseJobStatus(s string) (JobStatus, error) {
	status := JobStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid job status %q", s)
	}
	return status, nil
}

// IsValid reports whether the status is known
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are expected
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransitionTo reports whether moving to next keeps the lifecycle monotonic.
// The store does not enforce this; callers use it to reject regressions.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if !next.IsValid() {
		return false
	}
	switch s {
	case JobStatusPending:
		return true
	case JobStatusRunning:
		return next != JobStatusPending
	default:
		return s == next
	}
}

func (s JobStatus) String() string {
	return string(s)
}
