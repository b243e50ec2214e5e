package scheduler

import (
	"errors"
	"fmt"
)

var (
	// ErrSchedulerNotRunning is returned when trying to submit a job to a stopped scheduler
	ErrSchedulerNotRunning = errors.New("scheduler is not running")

	// ErrJobQueueFull is returned when the job queue is full
	ErrJobQueueFull = errors.New("job queue is full")

	// ErrJobNotFound is returned when a job is not found
	ErrJobNotFound = errors.New("job not found")

	// ErrUnknownJobKind is returned for a job kind no executor handles
	ErrUnknownJobKind = errors.New("unknown job kind")
)

// JobPanicError reports a job whose executor panicked
type JobPanicError struct {
	Value any
}

func (e *JobPanicError) Error() string {
	return fmt.Sprintf("job panicked: %v", e.Value)
}
