package model

// Raw AWS Batch job status strings as returned by DescribeJobs.
const (
	RawSubmitted = "SUBMITTED"
	RawPending   = "PENDING"
	RawRunnable  = "RUNNABLE"
	RawStarting  = "STARTING"
	RawRunning   = "RUNNING"
	RawSucceeded = "SUCCEEDED"
	RawFailed    = "FAILED"

	// Not part of the documented Batch state machine today, but some
	// queueing backends report termination as its own state.
	RawCancelled  = "CANCELLED"
	RawTerminated = "TERMINATED"
)

// Verdict is the classified view of a remote job's status.
type Verdict string

// Verdict values.
const (
	VerdictPending   Verdict = "PENDING"
	VerdictRunning   Verdict = "RUNNING"
	VerdictSucceeded Verdict = "SUCCEEDED"
	VerdictFailed    Verdict = "FAILED"
	VerdictCancelled Verdict = "CANCELLED"
)

// Terminal reports whether no further transition is possible from v.
func (v Verdict) Terminal() bool {
	switch v {
	case VerdictSucceeded, VerdictFailed, VerdictCancelled:
		return true
	}
	return false
}

// Classify maps a raw remote status string to a Verdict. The second return
// is false for statuses not in the table; those classify as PENDING so an
// unrecognized state added by the provider is never mistaken for terminal.
// Callers should log unknown statuses.
func Classify(raw string) (Verdict, bool) {
	switch raw {
	case RawSubmitted, RawPending, RawRunnable, RawStarting:
		return VerdictPending, true
	case RawRunning:
		return VerdictRunning, true
	case RawSucceeded:
		return VerdictSucceeded, true
	case RawFailed:
		return VerdictFailed, true
	case RawCancelled, RawTerminated:
		return VerdictCancelled, true
	}
	return VerdictPending, false
}
