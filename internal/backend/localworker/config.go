package localworker

import (
	"sortruns/internal/config"
)

// Config holds configuration for the local Docker backend.
type Config struct {
	// LogsDir is the host directory bound to /logs in worker containers.
	// The worker writes one log file per run there.
	LogsDir string

	// ResultsDir is the host directory bound to /results in worker
	// containers.
	ResultsDir string
}

// LoadConfigFromEnv reads the local backend configuration from the
// environment, falling back to defaults.
func LoadConfigFromEnv() Config {
	return Config{
		LogsDir:    config.GetEnv("LOCAL_WORKER_LOGS_DIR", "./logs"),
		ResultsDir: config.GetEnv("LOCAL_WORKER_RESULTS_DIR", "./results"),
	}
}
