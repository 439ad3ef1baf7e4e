package tracker

import (
	"errors"
	"fmt"
	"time"
)

// ErrAlreadyTracked is returned by Track when the task already has a live
// remote submission. At most one live handle exists per task id;
// resubmission is rejected, never duplicated.
var ErrAlreadyTracked = errors.New("task already has a live remote submission")

// ErrNotTracked is returned by Cancel when no live handle exists for the
// task id.
var ErrNotTracked = errors.New("task is not tracked")

// errCancelWhileSubmitting marks a submission resolved by a cancel request
// that arrived while the submit call was in flight. The cancelled outcome
// has already been reported by the time this is returned.
var errCancelWhileSubmitting = errors.New("cancelled while submitting")

// LostTrackingError reports a job absent from describe responses for longer
// than the grace window. Treated as a terminal task failure rather than
// polled indefinitely.
type LostTrackingError struct {
	TaskID string
	JobID  string
	Window time.Duration
}

func (e *LostTrackingError) Error() string {
	return fmt.Sprintf("lost tracking of job %s (task %s): no describe response within %s",
		e.JobID, e.TaskID, e.Window)
}

// TimeoutError reports a job that stayed non-terminal past the configured
// job timeout. Treated as a terminal task failure; a best-effort terminate
// is issued alongside.
type TimeoutError struct {
	TaskID string
	JobID  string
	Limit  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("job %s (task %s) exceeded timeout %s", e.JobID, e.TaskID, e.Limit)
}
