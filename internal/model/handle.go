package model

import "time"

// Handle state constants.
const (
	StateSubmitted = "submitted"
	StatePolling   = "polling"
	StateSucceeded = "succeeded"
	StateFailed    = "failed"
	StateCancelled = "cancelled"
)

// validTransitions maps each handle state to the set of states it may
// transition to. Terminal states have no entry and are absorbing.
var validTransitions = map[string]map[string]bool{
	StateSubmitted: {
		StatePolling:   true,
		StateFailed:    true,
		StateCancelled: true,
	},
	StatePolling: {
		StatePolling:   true,
		StateSucceeded: true,
		StateFailed:    true,
		StateCancelled: true,
	},
}

// ValidTransition reports whether transitioning from one handle state to
// another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// TerminalState reports whether a handle state admits no further transition.
func TerminalState(state string) bool {
	_, ok := validTransitions[state]
	return !ok
}

// RemoteJobHandle pairs a local task with its remote batch-job identity.
// Created at submission time and mutated only by the tracker while polling;
// removed from the tracked set once its terminal outcome has been reported.
type RemoteJobHandle struct {
	TaskID        string    `json:"task_id"`
	JobID         string    `json:"job_id"`
	JobName       string    `json:"job_name"`
	Queue         string    `json:"queue"`
	JobDefinition string    `json:"job_definition"`
	State         string    `json:"state"`
	LastStatus    string    `json:"last_status,omitempty"`
	Attempts      int       `json:"attempts"`
	SubmittedAt   time.Time `json:"submitted_at"`
	LastSeenAt    time.Time `json:"last_seen_at"`
}
