// Package coordinator relaunches the entire workflow run as one
// fire-and-forget remote job. The local process submits that single job,
// optionally polls it to completion, and exits with its verdict; the
// remote process performs the real per-rule submission in-cluster, with
// recursion prevented by the coordinator context environment variable.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/seqfabric/batchbridge/internal/config"
	"github.com/seqfabric/batchbridge/internal/model"
	"github.com/seqfabric/batchbridge/internal/overrides"
	"github.com/seqfabric/batchbridge/internal/tracker"
)

// taskID is the synthetic sentinel identifying "the entire run".
const taskID = "coordinator"

// executable is the command the coordinator container re-invokes. The
// workflow sources are expected to be baked into the container image.
const executable = "batchbridge"

// InContext reports whether this process is already running inside a
// coordinator job. Checked once at startup; it is the recursion guard.
func InContext() bool {
	return os.Getenv(overrides.EnvCoordinatorContext) == "1"
}

// BuildTask builds the single synthetic task that re-runs the workflow
// with the original arguments forwarded verbatim. The context environment
// variable prevents recursion even if the coordinator flag is passed again.
func BuildTask(argv []string) model.Task {
	cmd := executable
	if len(argv) > 0 {
		cmd += " " + shellJoin(argv)
	}
	return model.Task{
		ID:      taskID,
		Rule:    taskID,
		Command: cmd,
	}
}

// Launcher submits and monitors the coordinator job.
type Launcher struct {
	client   tracker.SubmissionClient
	settings config.Settings
	logger   *slog.Logger
}

// NewLauncher creates a coordinator launcher over the given submission client.
func NewLauncher(client tracker.SubmissionClient, settings config.Settings, logger *slog.Logger) *Launcher {
	return &Launcher{client: client, settings: settings, logger: logger}
}

// Tracker builds the single-handle tracker the coordinator job is polled
// with. The coordinator-specific queue and job definition apply, falling
// back to the main ones when unset, and the override environment carries
// the no-recursion flag.
func (l *Launcher) Tracker() *tracker.Tracker {
	queue := l.settings.CoordinatorQueue
	if queue == "" {
		queue = l.settings.JobQueue
	}
	definition := l.settings.CoordinatorJobDefinition
	if definition == "" {
		definition = l.settings.JobDefinition
	}

	cfg := tracker.Config{
		Queue:         queue,
		JobDefinition: definition,
		Override: overrides.Options{
			Region:             l.settings.Region,
			StorageProvider:    l.settings.StorageProvider,
			StoragePrefix:      l.settings.StoragePrefix,
			CoordinatorContext: true,
		},
		PollInterval: l.settings.PollInterval,
		GraceWindow:  l.settings.GraceWindow,
		JobTimeout:   l.settings.JobTimeout,
		MaxInFlight:  1,
	}
	return tracker.New(l.client, cfg, l.logger)
}

// Launch submits the coordinator job. With detach set it returns right
// after submission so the invoking terminal can disconnect; otherwise it
// polls the one handle to its terminal verdict, which becomes the
// process's own exit signal.
func (l *Launcher) Launch(ctx context.Context, argv []string, detach bool) (model.Verdict, error) {
	t := l.Tracker()
	task := BuildTask(argv)

	jobID, err := t.SubmitSync(ctx, task)
	if err != nil {
		return model.VerdictFailed, fmt.Errorf("submit coordinator job: %w", err)
	}

	l.logger.Info("coordinator job submitted",
		"job_id", jobID,
		"console_url", consoleURL(l.settings.Region, jobID),
	)

	if detach {
		l.logger.Info("detaching; the run continues in the compute environment")
		return model.VerdictSucceeded, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go t.Run(runCtx)

	select {
	case oc := <-t.Outcomes():
		return oc.Verdict, nil
	case <-ctx.Done():
		return model.VerdictFailed, ctx.Err()
	}
}

func consoleURL(region, jobID string) string {
	return fmt.Sprintf("https://console.aws.amazon.com/batch/home?region=%s#jobs/detail/%s", region, jobID)
}

// safeArg matches arguments that need no quoting.
var safeArg = regexp.MustCompile(`^[A-Za-z0-9@%+=:,./_-]+$`)

// shellJoin quotes and joins arguments for /bin/bash -c consumption.
func shellJoin(argv []string) string {
	quoted := make([]string, len(argv))
	for i, a := range argv {
		quoted[i] = shellQuote(a)
	}
	return strings.Join(quoted, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if safeArg.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
