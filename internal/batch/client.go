// Package batch wraps the AWS Batch API behind the three operations the
// executor core needs: submit one job, describe many, terminate one. It
// owns the network and auth boundary and holds no local state.
package batch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsbatch "github.com/aws/aws-sdk-go-v2/service/batch"

	"github.com/seqfabric/batchbridge/internal/overrides"
)

// DescribeBatchSize is the maximum number of job ids DescribeJobs accepts
// in one call. Describe chunks larger id sets to this size.
const DescribeBatchSize = 100

// API is the subset of the AWS Batch client the submission client uses.
type API interface {
	SubmitJob(ctx context.Context, in *awsbatch.SubmitJobInput, optFns ...func(*awsbatch.Options)) (*awsbatch.SubmitJobOutput, error)
	DescribeJobs(ctx context.Context, in *awsbatch.DescribeJobsInput, optFns ...func(*awsbatch.Options)) (*awsbatch.DescribeJobsOutput, error)
	TerminateJob(ctx context.Context, in *awsbatch.TerminateJobInput, optFns ...func(*awsbatch.Options)) (*awsbatch.TerminateJobOutput, error)
}

// JobDetail is the per-job slice of a describe response the tracker cares
// about.
type JobDetail struct {
	JobID        string
	Status       string
	StatusReason string
	ExitCode     *int32
}

// Client is the submission client.
type Client struct {
	api    API
	logger *slog.Logger
}

// NewClient creates a submission client over the given API implementation.
func NewClient(api API, logger *slog.Logger) *Client {
	return &Client{api: api, logger: logger}
}

// NewFromConfig builds a client against the real AWS Batch service using
// the default credential chain and the given region.
func NewFromConfig(ctx context.Context, region string, logger *slog.Logger) (*Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, &ConfigurationError{Op: "load aws config", Err: err}
	}
	return NewClient(awsbatch.NewFromConfig(cfg), logger), nil
}

// Submit submits one job and returns its remote job id. Exactly one network
// call; throttling faults come back as *ThrottledError, bad queue or
// definition identities as *ConfigurationError.
func (c *Client) Submit(ctx context.Context, ov overrides.Override) (string, error) {
	out, err := c.api.SubmitJob(ctx, &awsbatch.SubmitJobInput{
		JobName:            aws.String(ov.JobName),
		JobQueue:           aws.String(ov.Queue),
		JobDefinition:      aws.String(ov.JobDefinition),
		ContainerOverrides: ov.ContainerOverrides(),
	})
	if err != nil {
		submitsTotal.WithLabelValues(resultError).Inc()
		return "", classifyAPIError("submit job", err)
	}
	if out.JobId == nil || *out.JobId == "" {
		submitsTotal.WithLabelValues(resultError).Inc()
		return "", fmt.Errorf("submit job: response carried no job id")
	}

	submitsTotal.WithLabelValues(resultOK).Inc()
	c.logger.Debug("job submitted",
		"job_name", ov.JobName,
		"job_id", *out.JobId,
		"queue", ov.Queue,
	)
	return *out.JobId, nil
}

// Describe returns the current detail for the given remote job ids, keyed
// by id. Requests are chunked to DescribeBatchSize and the results merged.
// Ids the API no longer knows are simply absent from the result; callers
// must treat absence distinctly from a terminal status.
func (c *Client) Describe(ctx context.Context, ids []string) (map[string]JobDetail, error) {
	details := make(map[string]JobDetail, len(ids))

	for start := 0; start < len(ids); start += DescribeBatchSize {
		end := min(start+DescribeBatchSize, len(ids))

		out, err := c.api.DescribeJobs(ctx, &awsbatch.DescribeJobsInput{
			Jobs: ids[start:end],
		})
		describeCalls.Inc()
		if err != nil {
			return nil, classifyAPIError("describe jobs", err)
		}

		for _, jd := range out.Jobs {
			if jd.JobId == nil {
				continue
			}
			d := JobDetail{
				JobID:  *jd.JobId,
				Status: string(jd.Status),
			}
			if jd.StatusReason != nil {
				d.StatusReason = *jd.StatusReason
			}
			if jd.Container != nil {
				d.ExitCode = jd.Container.ExitCode
			}
			details[d.JobID] = d
		}
	}

	return details, nil
}

// Terminate requests termination of a remote job. Best-effort: terminating
// a job already in a terminal state is a no-op on the API side, and errors
// are returned for logging only, never acted on.
func (c *Client) Terminate(ctx context.Context, jobID, reason string) error {
	_, err := c.api.TerminateJob(ctx, &awsbatch.TerminateJobInput{
		JobId:  aws.String(jobID),
		Reason: aws.String(reason),
	})
	if err != nil {
		return classifyAPIError("terminate job", err)
	}
	c.logger.Debug("job terminate requested", "job_id", jobID, "reason", reason)
	return nil
}
