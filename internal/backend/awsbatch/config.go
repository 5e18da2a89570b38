package awsbatch

import (
	"time"

	"sortruns/internal/config"
)

// Config holds configuration for the AWS Batch backend.
type Config struct {
	// JobQueue and JobDefinition name the pre-provisioned Batch
	// resources jobs are submitted to. Both are required; the backend
	// is disabled when either is empty.
	JobQueue      string
	JobDefinition string

	// JobTimeout bounds a single job attempt.
	JobTimeout time.Duration

	// LogGroup is the CloudWatch log group Batch writes container
	// output to.
	LogGroup string
}

// LoadConfigFromEnv reads the Batch backend configuration from the
// environment. Credentials and region come from the standard AWS SDK
// resolution chain.
func LoadConfigFromEnv() Config {
	return Config{
		JobQueue:      config.GetEnv("AWS_BATCH_JOB_QUEUE", ""),
		JobDefinition: config.GetEnv("AWS_BATCH_JOB_DEFINITION", ""),
		JobTimeout:    config.GetDurationEnv("AWS_BATCH_JOB_TIMEOUT", 30*time.Minute),
		LogGroup:      config.GetEnv("AWS_BATCH_LOG_GROUP", "/aws/batch/job"),
	}
}

// Enabled reports whether the backend has the resources it needs.
func (c Config) Enabled() bool {
	return c.JobQueue != "" && c.JobDefinition != ""
}
