// Package objectstore reads run artifacts from S3. Batch workers upload
// their log file on exit; the object outlives both the container and its
// CloudWatch stream.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"sortruns/internal/config"
)

// s3API is the slice of the S3 client the store uses.
type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Config holds configuration for the run log store.
type Config struct {
	// Bucket holds uploaded run logs. The store is disabled when empty.
	Bucket string
}

// LoadConfigFromEnv reads the store configuration from the environment.
func LoadConfigFromEnv() Config {
	return Config{
		Bucket: config.GetEnv("RUN_LOGS_BUCKET", ""),
	}
}

// Enabled reports whether a bucket is configured.
func (c Config) Enabled() bool {
	return c.Bucket != ""
}

// Store reads uploaded run logs from an S3 bucket.
type Store struct {
	client s3API
	bucket string
}

// New creates a run log store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("run log store requires a bucket")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	return &Store{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.Bucket,
	}, nil
}

// FetchRunLog returns the uploaded log file for a run, or an empty string
// when the worker has not uploaded one.
func (s *Store) FetchRunLog(ctx context.Context, identifier string) (string, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(runLogKey(identifier)),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read run log for %s: %w", identifier, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read run log body for %s: %w", identifier, err)
	}
	return string(data), nil
}

func runLogKey(identifier string) string {
	return fmt.Sprintf("sorting_worker_%s.log", identifier)
}
