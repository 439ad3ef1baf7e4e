// Package tracker owns the set of in-flight local↔remote job pairs and
// drives them through the submission and poll lifecycle:
//
//	submitted → polling → succeeded | failed | cancelled
//
// The tracker is the sole owner of that mutable state; the submission
// fan-out path and the poll path serialize on one mutex, and readers get
// consistent copies, never live handles.
package tracker

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/semaphore"

	"github.com/seqfabric/batchbridge/internal/batch"
	"github.com/seqfabric/batchbridge/internal/model"
	"github.com/seqfabric/batchbridge/internal/overrides"
)

// Defaults for tuning knobs left unset in Config.
const (
	DefaultPollInterval      = 30 * time.Second
	DefaultGraceWindow       = time.Minute
	DefaultMaxInFlight       = 8
	DefaultSubmitRetryBudget = 2 * time.Minute
	defaultOutcomeBuffer     = 256
)

// SubmissionClient is the seam to the remote queueing API. Implemented by
// *batch.Client in production and by fakes in tests.
type SubmissionClient interface {
	Submit(ctx context.Context, ov overrides.Override) (string, error)
	Describe(ctx context.Context, ids []string) (map[string]batch.JobDetail, error)
	Terminate(ctx context.Context, jobID, reason string) error
}

// Config holds the tracker's tuning knobs and submission identities.
type Config struct {
	// Queue and JobDefinition identify the externally provisioned Batch
	// resources every submission targets.
	Queue         string
	JobDefinition string

	// Override carries the cross-cutting override options (region, storage
	// provider/prefix, coordinator context).
	Override overrides.Options

	// PollInterval is the base describe cadence; each wait is jittered
	// ±10% to avoid thundering-herd describes across processes.
	PollInterval time.Duration

	// GraceWindow bounds how long a tracked job may be absent from
	// describe responses before it is failed with LostTrackingError. The
	// remote record may lag submission or expire from the API's retention.
	GraceWindow time.Duration

	// JobTimeout force-fails jobs older than this with TimeoutError.
	// Zero disables the local ceiling; the queue's own policy applies.
	JobTimeout time.Duration

	// MaxInFlight bounds concurrent outstanding submit calls.
	MaxInFlight int64

	// SubmitRetryBudget bounds the total elapsed time spent backing off a
	// throttled or transiently failing submission before it is reported
	// as a task failure.
	SubmitRetryBudget time.Duration
}

func (c *Config) withDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.GraceWindow <= 0 {
		c.GraceWindow = DefaultGraceWindow
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = DefaultMaxInFlight
	}
	if c.SubmitRetryBudget <= 0 {
		c.SubmitRetryBudget = DefaultSubmitRetryBudget
	}
}

// Outcome is one terminal verdict reported back to the engine.
type Outcome struct {
	TaskID    string
	JobID     string
	Verdict   model.Verdict
	RawStatus string
	Reason    string
}

// Tracker is the per-run job state machine.
type Tracker struct {
	client SubmissionClient
	cfg    Config
	logger *slog.Logger
	sem    *semaphore.Weighted

	mu             sync.Mutex
	handles        map[string]*model.RemoteJobHandle // taskID → handle
	pending        map[string]bool                   // taskIDs with an in-flight submit
	cancelRequests map[string]string                 // pending taskID → cancel reason

	outcomes chan Outcome
	wg       sync.WaitGroup
}

// New creates a tracker over the given submission client.
func New(client SubmissionClient, cfg Config, logger *slog.Logger) *Tracker {
	cfg.withDefaults()
	return &Tracker{
		client:         client,
		cfg:            cfg,
		logger:         logger,
		sem:            semaphore.NewWeighted(cfg.MaxInFlight),
		handles:        make(map[string]*model.RemoteJobHandle),
		pending:        make(map[string]bool),
		cancelRequests: make(map[string]string),
		outcomes:       make(chan Outcome, defaultOutcomeBuffer),
	}
}

// Outcomes returns the channel terminal verdicts are reported on. The
// engine side must drain it; the buffer absorbs bursts, not neglect.
func (t *Tracker) Outcomes() <-chan Outcome {
	return t.outcomes
}

// Track submits the task asynchronously and begins tracking it. Returns
// ErrAlreadyTracked if the task already has a live submission, or the
// override builder's error (e.g. overrides.ErrOverrideTooLarge) before any
// network call is made. Submission failures after that are reported on the
// outcomes channel as FAILED verdicts; a fatal ConfigurationError never
// creates a handle.
func (t *Tracker) Track(ctx context.Context, task model.Task) error {
	ov, err := overrides.Build(task, t.cfg.Queue, t.cfg.JobDefinition, t.cfg.Override)
	if err != nil {
		return err
	}
	if err := t.reserve(task.ID); err != nil {
		return err
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		if _, err := t.submitReserved(ctx, task.ID, ov); err != nil && !errors.Is(err, errCancelWhileSubmitting) {
			t.logger.Error("submission failed", "task_id", task.ID, "rule", task.Rule, "error", err)
			t.report(Outcome{TaskID: task.ID, Verdict: model.VerdictFailed, Reason: err.Error()})
		}
	}()
	return nil
}

// SubmitSync submits the task inline and begins tracking it, returning the
// remote job id. Used where the caller needs the id before proceeding, such
// as the coordinator launch.
func (t *Tracker) SubmitSync(ctx context.Context, task model.Task) (string, error) {
	ov, err := overrides.Build(task, t.cfg.Queue, t.cfg.JobDefinition, t.cfg.Override)
	if err != nil {
		return "", err
	}
	if err := t.reserve(task.ID); err != nil {
		return "", err
	}
	return t.submitReserved(ctx, task.ID, ov)
}

// reserve claims the task id so concurrent Track calls for the same task
// are rejected while its submission is still in flight.
func (t *Tracker) reserve(taskID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending[taskID] || t.handles[taskID] != nil {
		return ErrAlreadyTracked
	}
	t.pending[taskID] = true
	return nil
}

// submitReserved runs the bounded, backed-off submit for a reserved task
// and installs the handle on success. On failure the reservation is
// released and no handle ever exists. A cancel recorded while the submit
// was in flight resolves here: cancelled outcome, no handle.
func (t *Tracker) submitReserved(ctx context.Context, taskID string, ov overrides.Override) (string, error) {
	jobID, err := t.submit(ctx, ov)

	t.mu.Lock()
	delete(t.pending, taskID)
	reason, cancelled := t.cancelRequests[taskID]
	delete(t.cancelRequests, taskID)

	if cancelled {
		t.mu.Unlock()
		// A cancel arrived while the submit call was in flight. The cancel
		// wins: no handle is installed, and the job, if it was created, is
		// terminated rather than polled to its own verdict.
		outcomesTotal.WithLabelValues(string(model.VerdictCancelled)).Inc()
		t.report(Outcome{TaskID: taskID, JobID: jobID, Verdict: model.VerdictCancelled, Reason: reason})
		if err == nil {
			t.terminateAsync(ctx, jobID, reason)
		}
		return "", errCancelWhileSubmitting
	}
	if err != nil {
		t.mu.Unlock()
		return "", err
	}

	now := time.Now().UTC()
	h := &model.RemoteJobHandle{
		TaskID:        taskID,
		JobID:         jobID,
		JobName:       ov.JobName,
		Queue:         ov.Queue,
		JobDefinition: ov.JobDefinition,
		// submitted → polling is immediate once the handle exists.
		State:       model.StatePolling,
		SubmittedAt: now,
		LastSeenAt:  now,
	}
	t.handles[taskID] = h
	t.mu.Unlock()

	trackedJobs.Inc()
	t.logger.Info("tracking job", "task_id", taskID, "job_id", jobID, "job_name", ov.JobName)
	return jobID, nil
}

// submit performs the network submission under the in-flight bound,
// retrying throttled and transient failures with exponential backoff until
// the retry budget runs out. Configuration faults abort immediately.
func (t *Tracker) submit(ctx context.Context, ov overrides.Override) (string, error) {
	if err := t.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer t.sem.Release(1)

	var jobID string
	op := func() error {
		id, err := t.client.Submit(ctx, ov)
		if err != nil {
			var cfgErr *batch.ConfigurationError
			if errors.As(err, &cfgErr) {
				return backoff.Permanent(err)
			}
			submitRetries.Inc()
			t.logger.Warn("submit failed, backing off", "job_name", ov.JobName, "error", err)
			return err
		}
		jobID = id
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = t.cfg.SubmitRetryBudget
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}
	return jobID, nil
}

// Run drives the poll loop until ctx is cancelled. All polling handles are
// described together each cycle; the submission fan-out runs independently.
func (t *Tracker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(t.jitteredInterval()):
		}
		if err := t.PollOnce(ctx); err != nil {
			var cfgErr *batch.ConfigurationError
			if errors.As(err, &cfgErr) || ctx.Err() != nil {
				return
			}
		}
	}
}

// jitteredInterval spreads poll cycles across ±10% of the base interval.
func (t *Tracker) jitteredInterval() time.Duration {
	d := t.cfg.PollInterval
	spread := int64(d / 5)
	if spread <= 0 {
		return d
	}
	return d - time.Duration(spread/2) + time.Duration(rand.Int63n(spread))
}

// PollOnce runs one reconcile pass: describe every polling handle, apply
// the status classifier, enforce the grace window and job timeout, and
// report any terminal outcomes. Run calls it on a jittered cadence; tests
// and embedders may call it directly.
func (t *Tracker) PollOnce(ctx context.Context) error {
	start := time.Now()
	defer func() {
		pollCycleDuration.Observe(time.Since(start).Seconds())
	}()

	t.mu.Lock()
	ids := make([]string, 0, len(t.handles))
	for _, h := range t.handles {
		if h.State == model.StatePolling {
			ids = append(ids, h.JobID)
		}
	}
	t.mu.Unlock()

	if len(ids) == 0 {
		return nil
	}

	details, describeErr := t.client.Describe(ctx, ids)
	if describeErr != nil {
		var cfgErr *batch.ConfigurationError
		if errors.As(describeErr, &cfgErr) {
			// Revoked credentials or a bad identity never heal by polling
			// again. Fail every tracked handle now instead of retrying.
			t.logger.Error("describe hit a configuration fault, failing all tracked jobs",
				"jobs", len(ids), "error", describeErr)
			t.failAll(describeErr)
			return describeErr
		}
		// Transient outage: reconcile against an empty response so the
		// grace window keeps counting down instead of retrying unbounded.
		t.logger.Warn("describe failed", "jobs", len(ids), "error", describeErr)
		details = nil
	}

	now := time.Now().UTC()
	var done []Outcome
	var expired []string

	t.mu.Lock()
	for taskID, h := range t.handles {
		if h.State != model.StatePolling {
			continue
		}

		if d, seen := details[h.JobID]; seen {
			h.LastStatus = d.Status
			h.LastSeenAt = now
			verdict, known := model.Classify(d.Status)
			if !known {
				t.logger.Warn("unrecognized job status, treating as pending",
					"job_id", h.JobID, "status", d.Status)
			}
			if verdict.Terminal() {
				if oc, ok := t.finishLocked(taskID, h, verdict, d.StatusReason); ok {
					done = append(done, oc)
				}
				continue
			}
		} else if now.Sub(h.LastSeenAt) > t.cfg.GraceWindow {
			lost := &LostTrackingError{TaskID: taskID, JobID: h.JobID, Window: t.cfg.GraceWindow}
			if oc, ok := t.finishLocked(taskID, h, model.VerdictFailed, lost.Error()); ok {
				done = append(done, oc)
			}
			continue
		}

		if t.cfg.JobTimeout > 0 && now.Sub(h.SubmittedAt) > t.cfg.JobTimeout {
			to := &TimeoutError{TaskID: taskID, JobID: h.JobID, Limit: t.cfg.JobTimeout}
			if oc, ok := t.finishLocked(taskID, h, model.VerdictFailed, to.Error()); ok {
				expired = append(expired, h.JobID)
				done = append(done, oc)
			}
		}
	}
	t.mu.Unlock()

	for _, jobID := range expired {
		t.terminateAsync(ctx, jobID, "job timeout exceeded")
	}
	for _, oc := range done {
		t.report(oc)
	}
	return describeErr
}

// failAll fails every polling handle with the given cause. Used when a
// fatal describe fault means no handle can ever reach a remote verdict.
func (t *Tracker) failAll(cause error) {
	t.mu.Lock()
	var done []Outcome
	for taskID, h := range t.handles {
		if h.State != model.StatePolling {
			continue
		}
		if oc, ok := t.finishLocked(taskID, h, model.VerdictFailed, cause.Error()); ok {
			done = append(done, oc)
		}
	}
	t.mu.Unlock()

	for _, oc := range done {
		t.report(oc)
	}
}

// Cancel transitions the task's handle to CANCELLED immediately and issues
// a best-effort terminate. Optimistic local transition: the engine has
// already moved on, so the local verdict wins even if the remote job later
// reaches a different terminal state on its own. A task whose submission is
// still in flight has the cancel recorded and applied as soon as the submit
// call returns.
func (t *Tracker) Cancel(ctx context.Context, taskID, reason string) error {
	t.mu.Lock()
	if t.pending[taskID] {
		t.cancelRequests[taskID] = reason
		t.mu.Unlock()
		return nil
	}
	h, ok := t.handles[taskID]
	if !ok {
		t.mu.Unlock()
		return ErrNotTracked
	}
	oc, ok := t.finishLocked(taskID, h, model.VerdictCancelled, reason)
	jobID := h.JobID
	t.mu.Unlock()

	if !ok {
		return ErrNotTracked
	}

	t.report(oc)
	t.terminateAsync(ctx, jobID, reason)
	return nil
}

// finishLocked applies a terminal verdict to a handle: transition, removal
// from the tracked set, metrics. Callers hold t.mu. Returns false when the
// transition is not allowed (the handle already reached a terminal state,
// which is absorbing).
func (t *Tracker) finishLocked(taskID string, h *model.RemoteJobHandle, verdict model.Verdict, reason string) (Outcome, bool) {
	state := stateFor(verdict)
	if !model.ValidTransition(h.State, state) {
		t.logger.Warn("discarding verdict for finished handle",
			"task_id", taskID, "job_id", h.JobID, "state", h.State, "verdict", verdict)
		return Outcome{}, false
	}
	h.State = state
	delete(t.handles, taskID)

	trackedJobs.Dec()
	outcomesTotal.WithLabelValues(string(verdict)).Inc()

	return Outcome{
		TaskID:    taskID,
		JobID:     h.JobID,
		Verdict:   verdict,
		RawStatus: h.LastStatus,
		Reason:    reason,
	}, true
}

func stateFor(v model.Verdict) string {
	switch v {
	case model.VerdictSucceeded:
		return model.StateSucceeded
	case model.VerdictCancelled:
		return model.StateCancelled
	default:
		return model.StateFailed
	}
}

// terminateAsync issues a best-effort terminate without blocking the caller.
func (t *Tracker) terminateAsync(ctx context.Context, jobID, reason string) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		if err := t.client.Terminate(ctx, jobID, reason); err != nil {
			t.logger.Warn("terminate failed", "job_id", jobID, "error", err)
		}
	}()
}

// report delivers a terminal outcome to the engine side.
func (t *Tracker) report(oc Outcome) {
	t.logger.Info("job finished",
		"task_id", oc.TaskID,
		"job_id", oc.JobID,
		"verdict", oc.Verdict,
		"last_status", oc.RawStatus,
		"reason", oc.Reason,
	)
	t.outcomes <- oc
}

// Len returns the number of live handles plus reserved submissions.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.handles) + len(t.pending)
}

// Snapshot returns consistent copies of all live handles.
func (t *Tracker) Snapshot() []model.RemoteJobHandle {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.RemoteJobHandle, 0, len(t.handles))
	for _, h := range t.handles {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out
}

// Stats returns live handle counts keyed by state.
func (t *Tracker) Stats() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	stats := make(map[string]int)
	for _, h := range t.handles {
		stats[h.State]++
	}
	if len(t.pending) > 0 {
		stats[model.StateSubmitted] += len(t.pending)
	}
	return stats
}

// Wait blocks until all in-flight submission and terminate goroutines
// complete.
func (t *Tracker) Wait() {
	t.wg.Wait()
}
