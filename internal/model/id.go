package model

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// NewJobName builds a remote job name from the given parts plus a ULID
// suffix for uniqueness across resubmissions. Parts are joined with "-".
func NewJobName(parts ...string) string {
	parts = append(parts, ulid.Make().String())
	return strings.Join(parts, "-")
}
