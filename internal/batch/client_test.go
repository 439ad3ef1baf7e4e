package batch_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsbatch "github.com/aws/aws-sdk-go-v2/service/batch"
	"github.com/aws/aws-sdk-go-v2/service/batch/types"
	"github.com/aws/smithy-go"

	"github.com/seqfabric/batchbridge/internal/batch"
	"github.com/seqfabric/batchbridge/internal/model"
	"github.com/seqfabric/batchbridge/internal/overrides"
)

// apiError implements smithy.APIError for fault-classification tests.
type apiError struct {
	code string
}

func (e *apiError) Error() string                 { return e.code }
func (e *apiError) ErrorCode() string             { return e.code }
func (e *apiError) ErrorMessage() string          { return e.code }
func (e *apiError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

// fakeAPI is a configurable stand-in for the AWS Batch client.
type fakeAPI struct {
	submitErr     error
	submitInputs  []*awsbatch.SubmitJobInput
	describeCalls [][]string
	statuses      map[string]types.JobStatus
	terminated    []string
}

func (f *fakeAPI) SubmitJob(_ context.Context, in *awsbatch.SubmitJobInput, _ ...func(*awsbatch.Options)) (*awsbatch.SubmitJobOutput, error) {
	f.submitInputs = append(f.submitInputs, in)
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &awsbatch.SubmitJobOutput{
		JobId:   aws.String(fmt.Sprintf("job-%d", len(f.submitInputs))),
		JobName: in.JobName,
	}, nil
}

func (f *fakeAPI) DescribeJobs(_ context.Context, in *awsbatch.DescribeJobsInput, _ ...func(*awsbatch.Options)) (*awsbatch.DescribeJobsOutput, error) {
	f.describeCalls = append(f.describeCalls, in.Jobs)

	var out awsbatch.DescribeJobsOutput
	for _, id := range in.Jobs {
		status, ok := f.statuses[id]
		if !ok {
			continue // unknown ids are omitted, not errors
		}
		out.Jobs = append(out.Jobs, types.JobDetail{
			JobId:  aws.String(id),
			Status: status,
		})
	}
	return &out, nil
}

func (f *fakeAPI) TerminateJob(_ context.Context, in *awsbatch.TerminateJobInput, _ ...func(*awsbatch.Options)) (*awsbatch.TerminateJobOutput, error) {
	f.terminated = append(f.terminated, *in.JobId)
	return &awsbatch.TerminateJobOutput{}, nil
}

func newTestClient(f *fakeAPI) *batch.Client {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return batch.NewClient(f, logger)
}

func testOverride(t *testing.T) overrides.Override {
	t.Helper()
	ov, err := overrides.Build(model.Task{
		ID:      "t1",
		Rule:    "align",
		Command: "echo hi",
	}, "main-queue", "main-def", overrides.Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return ov
}

func TestSubmitReturnsJobID(t *testing.T) {
	f := &fakeAPI{}
	c := newTestClient(f)

	jobID, err := c.Submit(context.Background(), testOverride(t))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if jobID != "job-1" {
		t.Errorf("jobID = %q, want %q", jobID, "job-1")
	}
	if len(f.submitInputs) != 1 {
		t.Fatalf("SubmitJob called %d times, want 1", len(f.submitInputs))
	}

	in := f.submitInputs[0]
	if *in.JobQueue != "main-queue" {
		t.Errorf("JobQueue = %q, want %q", *in.JobQueue, "main-queue")
	}
	if *in.JobDefinition != "main-def" {
		t.Errorf("JobDefinition = %q, want %q", *in.JobDefinition, "main-def")
	}
}

func TestSubmitClassifiesThrottling(t *testing.T) {
	f := &fakeAPI{submitErr: &apiError{code: "TooManyRequestsException"}}
	c := newTestClient(f)

	_, err := c.Submit(context.Background(), testOverride(t))
	var throttled *batch.ThrottledError
	if !errors.As(err, &throttled) {
		t.Fatalf("Submit error = %v, want *ThrottledError", err)
	}
}

func TestSubmitClassifiesBadDefinition(t *testing.T) {
	f := &fakeAPI{submitErr: &apiError{code: "ClientException"}}
	c := newTestClient(f)

	_, err := c.Submit(context.Background(), testOverride(t))
	var cfgErr *batch.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Submit error = %v, want *ConfigurationError", err)
	}
}

func TestSubmitUnclassifiedErrorPassesThrough(t *testing.T) {
	f := &fakeAPI{submitErr: errors.New("connection reset")}
	c := newTestClient(f)

	_, err := c.Submit(context.Background(), testOverride(t))
	if err == nil {
		t.Fatal("Submit: expected error")
	}
	var throttled *batch.ThrottledError
	var cfgErr *batch.ConfigurationError
	if errors.As(err, &throttled) || errors.As(err, &cfgErr) {
		t.Fatalf("Submit error = %v, should not be classified", err)
	}
}

func TestDescribeChunksToBatchSize(t *testing.T) {
	f := &fakeAPI{statuses: make(map[string]types.JobStatus)}

	n := 2*batch.DescribeBatchSize + 50
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("job-%d", i)
		f.statuses[ids[i]] = types.JobStatusRunning
	}

	c := newTestClient(f)
	details, err := c.Describe(context.Background(), ids)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}

	wantCalls := 3 // ceil(250/100)
	if len(f.describeCalls) != wantCalls {
		t.Errorf("DescribeJobs called %d times for %d ids, want %d", len(f.describeCalls), n, wantCalls)
	}
	for i, call := range f.describeCalls {
		if len(call) > batch.DescribeBatchSize {
			t.Errorf("call %d carried %d ids, exceeds batch size %d", i, len(call), batch.DescribeBatchSize)
		}
	}
	if len(details) != n {
		t.Errorf("merged details has %d entries, want %d", len(details), n)
	}
}

func TestDescribeOmitsUnknownIDs(t *testing.T) {
	f := &fakeAPI{statuses: map[string]types.JobStatus{
		"job-known": types.JobStatusSucceeded,
	}}
	c := newTestClient(f)

	details, err := c.Describe(context.Background(), []string{"job-known", "job-vanished"})
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if _, ok := details["job-known"]; !ok {
		t.Error("known id missing from result")
	}
	if _, ok := details["job-vanished"]; ok {
		t.Error("unknown id present in result; absence must be distinguishable")
	}
}

func TestTerminate(t *testing.T) {
	f := &fakeAPI{}
	c := newTestClient(f)

	if err := c.Terminate(context.Background(), "job-9", "cancelled by engine"); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if len(f.terminated) != 1 || f.terminated[0] != "job-9" {
		t.Errorf("terminated = %v, want [job-9]", f.terminated)
	}
}
