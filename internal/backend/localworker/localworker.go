// Package localworker implements the run.Backend interface using the Docker
// API. Worker containers run directly on the host Docker daemon and report
// their outcome through a per-run log file on a shared bind mount.
package localworker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"

	"sortruns/internal/apperrors"
	"sortruns/internal/run"
)

const (
	containerLogsPath    = "/logs"
	containerResultsPath = "/results"
)

// Backend runs sorting jobs as containers on the local Docker daemon.
type Backend struct {
	client     *client.Client
	logsDir    string
	resultsDir string
	logger     *slog.Logger
}

// New creates a local Docker backend. The logs and results directories are
// created if missing and resolved to absolute paths, which bind mounts
// require.
func New(cfg Config) (*Backend, error) {
	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	logsDir, err := ensureDir(cfg.LogsDir)
	if err != nil {
		return nil, err
	}
	resultsDir, err := ensureDir(cfg.ResultsDir)
	if err != nil {
		return nil, err
	}

	return &Backend{
		client:     dockerClient,
		logsDir:    logsDir,
		resultsDir: resultsDir,
		logger:     slog.With("component", "localworker"),
	}, nil
}

func ensureDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve directory %q: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory %q: %w", abs, err)
	}
	return abs, nil
}

// Target returns the execution target this backend serves.
func (b *Backend) Target() string {
	return run.TargetLocal
}

// Ready reports whether the Docker daemon is reachable.
func (b *Backend) Ready(ctx context.Context) error {
	_, err := b.client.Ping(ctx)
	return err
}

// Submit creates and starts a worker container for the run. The call
// returns once the container is started; the outcome is observed later via
// StatusAndLogs.
func (b *Backend) Submit(ctx context.Context, spec *run.JobSpec) error {
	workerImage, ok := ImageForSorter(spec.SorterName)
	if !ok {
		return apperrors.Validation("sorterName",
			fmt.Sprintf("no worker image for sorter %q", spec.SorterName))
	}

	env, err := spec.Environment()
	if err != nil {
		return apperrors.Internal("localworker.buildEnvironment", err)
	}

	// Detached context so an HTTP-scoped deadline does not abort a slow
	// image pull.
	if err := b.pullImageIfNeeded(context.WithoutCancel(ctx), workerImage); err != nil {
		return apperrors.Internal("localworker.pullImage", err)
	}

	// A retried submission may leave a prior container under the same
	// name. Remove it so the retry can proceed.
	containerName := containerNameFor(spec.RunIdentifier)
	_ = b.client.ContainerRemove(ctx, containerName, container.RemoveOptions{Force: true})

	containerID, err := b.createWorkerContainer(ctx, spec, workerImage, env)
	if err != nil {
		return apperrors.Internal("localworker.createContainer", err)
	}

	if err := b.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		_ = b.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
		return apperrors.Internal("localworker.startContainer", err)
	}

	b.logger.Info("Worker container started",
		"runIdentifier", spec.RunIdentifier,
		"image", workerImage,
		"containerId", containerID)
	return nil
}

func (b *Backend) createWorkerContainer(ctx context.Context, spec *run.JobSpec, workerImage string, env map[string]string) (string, error) {
	containerEnv := make([]string, 0, len(env))
	for k, v := range env {
		containerEnv = append(containerEnv, fmt.Sprintf("%s=%s", k, v))
	}

	containerConfig := &container.Config{
		Image: workerImage,
		Env:   containerEnv,
		Labels: map[string]string{
			"run.identifier": spec.RunIdentifier,
			"run.sorter":     spec.SorterName,
			"managed-by":     "sortruns",
		},
	}

	hostConfig := &container.HostConfig{
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: b.logsDir,
				Target: containerLogsPath,
			},
			{
				Type:   mount.TypeBind,
				Source: b.resultsDir,
				Target: containerResultsPath,
			},
		},
	}

	resp, err := b.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, containerNameFor(spec.RunIdentifier))
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

// StatusAndLogs derives the run's state from its worker log file. A missing
// or empty file means the worker has not reported anything yet.
func (b *Backend) StatusAndLogs(ctx context.Context, identifier string) (run.State, string, error) {
	data, err := os.ReadFile(logFilePath(b.logsDir, identifier))
	if err != nil {
		if os.IsNotExist(err) {
			return run.StateUnknown, run.LogsPlaceholder, nil
		}
		return run.StateUnknown, "", apperrors.Internal("localworker.readLogs", err)
	}

	logs := string(data)
	if strings.TrimSpace(logs) == "" {
		return run.StateUnknown, run.LogsPlaceholder, nil
	}
	return run.StateFromWorkerLogs(logs), logs, nil
}

func (b *Backend) pullImageIfNeeded(ctx context.Context, imageName string) error {
	_, err := b.client.ImageInspect(ctx, imageName)
	if err == nil {
		return nil
	}

	reader, err := b.client.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return err
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

func containerNameFor(identifier string) string {
	return fmt.Sprintf("si-sorting-run-%s", identifier)
}

func logFilePath(logsDir, identifier string) string {
	return filepath.Join(logsDir, fmt.Sprintf("sorting_worker_%s.log", identifier))
}
