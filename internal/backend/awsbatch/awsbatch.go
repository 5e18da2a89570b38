// Package awsbatch implements the run.Backend interface on AWS Batch.
// Jobs are submitted to a pre-provisioned job queue and definition;
// status is read back from the Batch API and logs from CloudWatch, with
// an optional object store fallback for workers that upload their log
// file on exit.
package awsbatch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/batch"
	batchtypes "github.com/aws/aws-sdk-go-v2/service/batch/types"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"

	"sortruns/internal/apperrors"
	"sortruns/internal/run"
)

// batchAPI is the slice of the Batch client the backend uses.
type batchAPI interface {
	SubmitJob(ctx context.Context, params *batch.SubmitJobInput, optFns ...func(*batch.Options)) (*batch.SubmitJobOutput, error)
	ListJobs(ctx context.Context, params *batch.ListJobsInput, optFns ...func(*batch.Options)) (*batch.ListJobsOutput, error)
	DescribeJobs(ctx context.Context, params *batch.DescribeJobsInput, optFns ...func(*batch.Options)) (*batch.DescribeJobsOutput, error)
}

// logsAPI is the slice of the CloudWatch Logs client the backend uses.
type logsAPI interface {
	GetLogEvents(ctx context.Context, params *cloudwatchlogs.GetLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.GetLogEventsOutput, error)
}

// RunLogStore fetches a run's uploaded log file. Workers upload their log
// on exit, which outlives the CloudWatch stream of a reaped job.
type RunLogStore interface {
	FetchRunLog(ctx context.Context, identifier string) (string, error)
}

// Backend runs sorting jobs on AWS Batch.
type Backend struct {
	batch    batchAPI
	logs     logsAPI
	logStore RunLogStore
	cfg      Config
	logger   *slog.Logger
}

// New creates an AWS Batch backend. logStore may be nil, disabling the
// object store log fallback.
func New(ctx context.Context, cfg Config, logStore RunLogStore) (*Backend, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("batch backend requires a job queue and job definition")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	return &Backend{
		batch:    batch.NewFromConfig(awsCfg),
		logs:     cloudwatchlogs.NewFromConfig(awsCfg),
		logStore: logStore,
		cfg:      cfg,
		logger:   slog.With("component", "awsbatch"),
	}, nil
}

// Target returns the execution target this backend serves.
func (b *Backend) Target() string {
	return run.TargetBatch
}

// Ready reports whether the Batch API and the configured queue are
// reachable.
func (b *Backend) Ready(ctx context.Context) error {
	_, err := b.batch.ListJobs(ctx, &batch.ListJobsInput{
		JobQueue:   aws.String(b.cfg.JobQueue),
		MaxResults: aws.Int32(1),
	})
	return err
}

// Submit submits the run to the Batch job queue. The job definition's
// container is parameterized entirely through environment overrides.
func (b *Backend) Submit(ctx context.Context, spec *run.JobSpec) error {
	env, err := spec.Environment()
	if err != nil {
		return apperrors.Internal("awsbatch.buildEnvironment", err)
	}

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	overrides := make([]batchtypes.KeyValuePair, 0, len(keys))
	for _, k := range keys {
		overrides = append(overrides, batchtypes.KeyValuePair{
			Name:  aws.String(k),
			Value: aws.String(env[k]),
		})
	}

	out, err := b.batch.SubmitJob(ctx, &batch.SubmitJobInput{
		JobName:       aws.String(jobNameFor(spec.RunIdentifier)),
		JobQueue:      aws.String(b.cfg.JobQueue),
		JobDefinition: aws.String(b.cfg.JobDefinition),
		Timeout: &batchtypes.JobTimeout{
			AttemptDurationSeconds: aws.Int32(int32(b.cfg.JobTimeout.Seconds())),
		},
		ContainerOverrides: &batchtypes.ContainerOverrides{
			Environment: overrides,
		},
	})
	if err != nil {
		return apperrors.Internal("awsbatch.submitJob", err)
	}

	b.logger.Info("Batch job submitted",
		"runIdentifier", spec.RunIdentifier,
		"jobId", aws.ToString(out.JobId))
	return nil
}

// StatusAndLogs locates the run's Batch job by name, maps the Batch
// vocabulary onto run states, and collects container logs.
func (b *Backend) StatusAndLogs(ctx context.Context, identifier string) (run.State, string, error) {
	list, err := b.batch.ListJobs(ctx, &batch.ListJobsInput{
		JobQueue: aws.String(b.cfg.JobQueue),
		Filters: []batchtypes.KeyValuesPair{
			{Name: aws.String("JOB_NAME"), Values: []string{jobNameFor(identifier)}},
		},
	})
	if err != nil {
		return run.StateUnknown, "", apperrors.Internal("awsbatch.listJobs", err)
	}
	if len(list.JobSummaryList) == 0 {
		return run.StateUnknown, run.LogsPlaceholder, nil
	}

	jobID := latestJobID(list.JobSummaryList)
	desc, err := b.batch.DescribeJobs(ctx, &batch.DescribeJobsInput{Jobs: []string{jobID}})
	if err != nil {
		return run.StateUnknown, "", apperrors.Internal("awsbatch.describeJobs", err)
	}
	if len(desc.Jobs) == 0 {
		return run.StateUnknown, run.LogsPlaceholder, nil
	}

	detail := desc.Jobs[0]
	state := stateFromJobStatus(detail.Status)
	logs := b.fetchLogs(ctx, identifier, detail)

	// Batch reports the container exit code, not the sorter outcome. A
	// worker that logged a sorter failure but exited zero must not be
	// surfaced as a success.
	if state == run.StateSuccess && run.StateFromWorkerLogs(logs) == run.StateFail {
		b.logger.Warn("Batch job succeeded but worker logged a failure",
			"runIdentifier", identifier, "jobId", jobID)
		state = run.StateFail
	}

	return state, logs, nil
}

// latestJobID picks the most recently created job. Resubmissions under the
// same name leave older entries in the listing.
func latestJobID(summaries []batchtypes.JobSummary) string {
	latest := summaries[0]
	for _, s := range summaries[1:] {
		if aws.ToInt64(s.CreatedAt) > aws.ToInt64(latest.CreatedAt) {
			latest = s
		}
	}
	return aws.ToString(latest.JobId)
}

func stateFromJobStatus(status batchtypes.JobStatus) run.State {
	switch status {
	case batchtypes.JobStatusSubmitted,
		batchtypes.JobStatusPending,
		batchtypes.JobStatusRunnable,
		batchtypes.JobStatusStarting,
		batchtypes.JobStatusRunning:
		return run.StateRunning
	case batchtypes.JobStatusSucceeded:
		return run.StateSuccess
	case batchtypes.JobStatusFailed:
		return run.StateFail
	default:
		return run.StateUnknown
	}
}

func (b *Backend) fetchLogs(ctx context.Context, identifier string, detail batchtypes.JobDetail) string {
	stream := ""
	if detail.Container != nil {
		stream = aws.ToString(detail.Container.LogStreamName)
	}

	if stream != "" {
		out, err := b.logs.GetLogEvents(ctx, &cloudwatchlogs.GetLogEventsInput{
			LogGroupName:  aws.String(b.cfg.LogGroup),
			LogStreamName: aws.String(stream),
			StartFromHead: aws.Bool(true),
		})
		if err != nil {
			b.logger.Warn("Failed to read CloudWatch logs",
				"runIdentifier", identifier, "logStream", stream, "error", err)
		} else if len(out.Events) > 0 {
			lines := make([]string, 0, len(out.Events))
			for _, ev := range out.Events {
				lines = append(lines, aws.ToString(ev.Message))
			}
			return strings.Join(lines, "\n")
		}
	}

	// Reaped jobs lose their CloudWatch stream; fall back to the log
	// file the worker uploaded on exit.
	if b.logStore != nil {
		logs, err := b.logStore.FetchRunLog(ctx, identifier)
		if err == nil && logs != "" {
			return logs
		}
		if err != nil {
			b.logger.Warn("Failed to read uploaded run log",
				"runIdentifier", identifier, "error", err)
		}
	}

	return run.LogsPlaceholder
}

func jobNameFor(identifier string) string {
	return fmt.Sprintf("si-sorting-run-%s", identifier)
}
