package batch

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
)

// ConfigurationError is a fatal, non-retryable fault: a bad queue or
// job-definition identity, or an otherwise malformed submission. The run
// aborts rather than retries.
type ConfigurationError struct {
	Op  string
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: configuration error: %v", e.Op, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ThrottledError is a transient rate-limit fault. Callers retry it with
// exponential backoff, bounded.
type ThrottledError struct {
	Op  string
	Err error
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("%s: throttled: %v", e.Op, e.Err)
}

func (e *ThrottledError) Unwrap() error { return e.Err }

// API fault codes that indicate throttling.
var throttleCodes = map[string]bool{
	"ThrottlingException":       true,
	"Throttling":                true,
	"TooManyRequestsException":  true,
	"RequestThrottled":          true,
	"RequestThrottledException": true,
}

// API fault codes that indicate a bad request rather than a transient
// condition. ClientException is what Batch returns for an unknown queue or
// job definition.
var configCodes = map[string]bool{
	"ClientException":       true,
	"ValidationException":   true,
	"AccessDeniedException": true,
}

// classifyAPIError wraps err as ThrottledError or ConfigurationError when
// the API fault code identifies it as such, and returns it wrapped but
// otherwise unclassified when not.
func classifyAPIError(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if throttleCodes[code] {
			return &ThrottledError{Op: op, Err: err}
		}
		if configCodes[code] {
			return &ConfigurationError{Op: op, Err: err}
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
