// Package config loads executor settings from environment variables. The
// queue, definition, region, and storage variables share their names with
// the override environment, which is how a coordinator-spawned process
// picks up where to submit its own children.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/seqfabric/batchbridge/internal/batch"
	"github.com/seqfabric/batchbridge/internal/overrides"
)

const (
	defaultPollInterval = 30 * time.Second
	defaultGraceWindow  = time.Minute
	defaultMaxInFlight  = 8

	envCoordinator       = "BATCHBRIDGE_COORDINATOR"
	envCoordinatorQueue  = "BATCHBRIDGE_COORDINATOR_QUEUE"
	envCoordinatorJobDef = "BATCHBRIDGE_COORDINATOR_JOB_DEFINITION"
	envPollInterval      = "BATCHBRIDGE_POLL_INTERVAL"
	envMaxInFlight       = "BATCHBRIDGE_MAX_INFLIGHT"
	envJobTimeout        = "BATCHBRIDGE_JOB_TIMEOUT"
	envGraceWindow       = "BATCHBRIDGE_GRACE_WINDOW"
	envDetach            = "BATCHBRIDGE_DETACH"
	envLogLevel          = "BATCHBRIDGE_LOG_LEVEL"
	envStatusAddr        = "BATCHBRIDGE_STATUS_ADDR"
)

// Settings holds the recognized configuration surface.
type Settings struct {
	// JobQueue and JobDefinition are the externally provisioned Batch
	// identifiers (name or ARN) every rule job is submitted against.
	JobQueue      string
	JobDefinition string
	Region        string

	// Coordinator relaunches the entire run as a single remote job.
	Coordinator bool
	// CoordinatorQueue and CoordinatorJobDefinition override the main
	// identifiers for the coordinator job itself; empty means fall back.
	CoordinatorQueue         string
	CoordinatorJobDefinition string
	// Detach exits right after the coordinator job is submitted instead
	// of polling it, so the invoking terminal can disconnect.
	Detach bool

	// PollInterval is the base describe cadence (default 30s, jittered).
	PollInterval time.Duration
	// MaxInFlight bounds concurrent outstanding submissions (default 8).
	MaxInFlight int64
	// JobTimeout force-fails jobs older than this; zero disables it and
	// leaves timeouts to the queue's own policy.
	JobTimeout time.Duration
	// GraceWindow bounds how long a job may be missing from describe
	// responses before it is treated as lost (default 1m).
	GraceWindow time.Duration

	// StorageProvider and StoragePrefix are passed through to remote jobs
	// so they can read and write workflow artifacts; this process never
	// touches storage itself.
	StorageProvider string
	StoragePrefix   string

	LogLevel slog.Level
	// StatusAddr, when set, serves the status/metrics HTTP endpoints.
	StatusAddr string

	// Warnings lists environment values that could not be parsed and were
	// replaced by their defaults. The caller logs them once a logger exists.
	Warnings []string
}

// Load reads settings from environment variables with documented defaults.
// Unparseable values fall back to their defaults and are recorded in
// Warnings rather than dropped silently.
func Load() Settings {
	s := Settings{
		PollInterval: defaultPollInterval,
		GraceWindow:  defaultGraceWindow,
		MaxInFlight:  defaultMaxInFlight,
		LogLevel:     slog.LevelInfo,
	}

	s.JobQueue = os.Getenv(overrides.EnvJobQueue)
	s.JobDefinition = os.Getenv(overrides.EnvJobDefinition)
	s.Region = os.Getenv(overrides.EnvRegion)
	s.StorageProvider = os.Getenv(overrides.EnvStorageProvider)
	s.StoragePrefix = os.Getenv(overrides.EnvStoragePrefix)
	s.CoordinatorQueue = os.Getenv(envCoordinatorQueue)
	s.CoordinatorJobDefinition = os.Getenv(envCoordinatorJobDef)
	s.StatusAddr = os.Getenv(envStatusAddr)

	warn := func(key, value, want string) {
		s.Warnings = append(s.Warnings,
			fmt.Sprintf("ignoring %s=%q: want %s, using default", key, value, want))
	}

	if v := os.Getenv(envCoordinator); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			s.Coordinator = b
		} else {
			warn(envCoordinator, v, "a boolean")
		}
	}
	if v := os.Getenv(envDetach); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			s.Detach = b
		} else {
			warn(envDetach, v, "a boolean")
		}
	}
	if v := os.Getenv(envPollInterval); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			s.PollInterval = d
		} else {
			warn(envPollInterval, v, "a positive duration like 30s")
		}
	}
	if v := os.Getenv(envGraceWindow); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			s.GraceWindow = d
		} else {
			warn(envGraceWindow, v, "a positive duration like 1m")
		}
	}
	if v := os.Getenv(envJobTimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			s.JobTimeout = d
		} else {
			warn(envJobTimeout, v, "a positive duration like 2h")
		}
	}
	if v := os.Getenv(envMaxInFlight); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			s.MaxInFlight = n
		} else {
			warn(envMaxInFlight, v, "a positive integer")
		}
	}
	if v := os.Getenv(envLogLevel); v != "" {
		level, ok := parseLogLevel(v)
		if !ok {
			warn(envLogLevel, v, "debug, info, warn, or error")
		}
		s.LogLevel = level
	}

	return s
}

// Validate checks the identities no run can proceed without. The returned
// error is a *batch.ConfigurationError: fatal, never retried.
func (s Settings) Validate() error {
	var missing []string
	if s.JobQueue == "" {
		missing = append(missing, overrides.EnvJobQueue)
	}
	if s.JobDefinition == "" {
		missing = append(missing, overrides.EnvJobDefinition)
	}
	if len(missing) > 0 {
		return &batch.ConfigurationError{
			Op:  "load settings",
			Err: errors.New("missing required settings: " + strings.Join(missing, ", ")),
		}
	}
	return nil
}

func parseLogLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
