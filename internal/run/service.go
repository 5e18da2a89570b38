package run

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"sortruns/internal/apperrors"
	"sortruns/internal/dispatch"
	"sortruns/internal/observability"
)

// identifierTimeLayout is the layout used to synthesize run identifiers when
// the caller does not supply one.
const identifierTimeLayout = "20060102150405"

// SourceResolver resolves a catalog-backed locator (dataset + file path) to a
// concrete URL. Implemented by the DANDI client.
type SourceResolver interface {
	ResolveSourceURL(ctx context.Context, datasetID, filePath string) (string, error)
}

// Service is the run lifecycle coordinator: it validates submissions, creates
// persistent records, builds the job specification, and hands execution to a
// backend through the supervised dispatcher.
//
// The service holds no per-run state; runs live in the repository and in
// their execution substrate.
type Service struct {
	repo       Repository
	backends   map[string]Backend
	resolver   SourceResolver
	dispatcher *dispatch.Runner
	reconciler *Reconciler
	metrics    *observability.Metrics
	username   string
	now        func() time.Time
}

// Config holds dependencies for the run service.
type Config struct {
	Repository Repository
	Backends   []Backend
	Resolver   SourceResolver // optional; without it catalog-backed submissions fail resolution
	Dispatcher *dispatch.Runner
	Metrics    *observability.Metrics
	Username   string // account runs are attributed to
}

// NewService creates a new run service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if len(cfg.Backends) == 0 {
		return nil, fmt.Errorf("at least one backend is required")
	}

	backends := make(map[string]Backend, len(cfg.Backends))
	for _, b := range cfg.Backends {
		if _, dup := backends[b.Target()]; dup {
			return nil, fmt.Errorf("duplicate backend for target %q", b.Target())
		}
		backends[b.Target()] = b
	}

	username := cfg.Username
	if username == "" {
		username = "admin"
	}

	return &Service{
		repo:       cfg.Repository,
		backends:   backends,
		resolver:   cfg.Resolver,
		dispatcher: cfg.Dispatcher,
		reconciler: NewReconciler(cfg.Repository, backends, cfg.Metrics),
		metrics:    cfg.Metrics,
		username:   username,
		now:        time.Now,
	}, nil
}

// SubmitRun validates a submission, persists its records, and dispatches
// execution in the background.
//
// Ordering: the run record (status running) is persisted before dispatch is
// enqueued, so a status query can never observe an acknowledged identifier
// with no record. The response only confirms submission; execution failure
// is discoverable through later status queries.
func (s *Service) SubmitRun(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	if req.RunIdentifier == "" {
		req.RunIdentifier = s.now().UTC().Format(identifierTimeLayout)
	}
	logger := slog.With("runIdentifier", req.RunIdentifier, "runAt", req.RunAt)

	// Catalog-backed locator: resolve to a concrete URL before anything is
	// persisted. Resolution failure aborts the submission with no records.
	if req.SourceName == "dandi" && len(req.SourceDataPaths) == 0 && req.DandisetID != "" {
		if s.resolver == nil {
			return nil, apperrors.Resolution("catalog.resolve", fmt.Errorf("no source resolver configured"))
		}
		url, err := s.resolver.ResolveSourceURL(ctx, req.DandisetID, req.DandisetFilePath)
		if err != nil {
			logger.Error("Source resolution failed", "dandisetId", req.DandisetID, "error", err)
			return nil, apperrors.Resolution("catalog.resolve", err)
		}
		req.SourceDataPaths = map[string]string{"file": url}
	}

	spec, err := BuildJobSpec(req)
	if err != nil {
		return nil, err
	}

	backend, ok := s.backends[req.RunAt]
	if !ok {
		return nil, apperrors.ValidationAllowed("runAt", req.RunAt, s.registeredTargets()...)
	}

	userID, err := s.repo.GetUserID(ctx, s.username)
	if err != nil {
		return nil, apperrors.Internal("repository.getUser", err)
	}

	cfgJSON, err := json.Marshal(spec)
	if err != nil {
		return nil, apperrors.Internal("jobspec.marshal", err)
	}

	ds := &DataSource{
		Name:            datasetName(req),
		Description:     req.RunDescription,
		UserID:          userID,
		SourceName:      req.SourceName,
		SourceDataType:  req.SourceDataType,
		SourceDataPaths: req.SourceDataPaths,
		RecordingKwargs: req.RecordingKwargs,
	}
	record := &Run{
		Identifier:  req.RunIdentifier,
		Description: req.RunDescription,
		RunAt:       req.RunAt,
		LastRunAt:   s.now().UTC(),
		Status:      StateRunning,
		UserID:      userID,
		Config:      cfgJSON,
		OutputPath:  req.OutputPath,
	}
	if err := s.repo.CreateSubmission(ctx, ds, record); err != nil {
		return nil, err
	}

	s.dispatchSubmission(backend, spec, userID)

	if s.metrics != nil {
		s.metrics.RecordRunSubmitted(ctx, req.RunAt, req.SorterName)
	}
	logger.Info("Run submitted", "sorter", req.SorterName)

	return &SubmitResponse{
		Message:       "Sorting run submitted",
		RunIdentifier: req.RunIdentifier,
	}, nil
}

// dispatchSubmission hands the backend call to the dispatcher. Any terminal
// failure, including an enqueue rejection, is converted into a persisted
// fail status; nothing escapes back to the submission caller.
func (s *Service) dispatchSubmission(backend Backend, spec *JobSpec, userID string) {
	task := &dispatch.Task{
		Key:   spec.RunIdentifier,
		Class: backend.Target(),
		Do: func(ctx context.Context) error {
			return backend.Submit(ctx, spec)
		},
		OnFailure: func(ctx context.Context, cause error) {
			err := apperrors.Dispatch(backend.Target()+".submit", cause)
			slog.Error("Run dispatch failed", "runIdentifier", spec.RunIdentifier, "error", err)
			if uerr := s.repo.UpdateRunStatus(ctx, userID, spec.RunIdentifier, StateFail, err.Error()); uerr != nil {
				slog.Error("Failed to record dispatch failure",
					"runIdentifier", spec.RunIdentifier, "error", uerr)
			}
			if s.metrics != nil {
				s.metrics.RecordDispatchFailure(ctx, backend.Target())
			}
		},
	}
	if err := s.dispatcher.Enqueue(task); err != nil {
		task.OnFailure(context.Background(), err)
	}
}

// GetRunInfo returns the reconciled view of one run.
func (s *Service) GetRunInfo(ctx context.Context, identifier string) (*RunView, error) {
	userID, err := s.repo.GetUserID(ctx, s.username)
	if err != nil {
		return nil, apperrors.Internal("repository.getUser", err)
	}
	record, err := s.repo.GetRun(ctx, userID, identifier)
	if err != nil {
		return nil, err
	}
	view := s.view(ctx, s.reconciler.Reconcile(ctx, record))
	return &view, nil
}

// ListRuns returns reconciled views of all runs for the service account.
// Each run is reconciled independently; one degraded run does not fail the
// listing.
func (s *Service) ListRuns(ctx context.Context) (*ListResponse, error) {
	userID, err := s.repo.GetUserID(ctx, s.username)
	if err != nil {
		return nil, apperrors.Internal("repository.getUser", err)
	}
	records, err := s.repo.ListRuns(ctx, userID)
	if err != nil {
		return nil, err
	}
	views := make([]RunView, 0, len(records))
	for _, record := range records {
		views = append(views, s.view(ctx, s.reconciler.Reconcile(ctx, record)))
	}
	return &ListResponse{Runs: views}, nil
}

// DeleteRun removes a run record. Deleting a run does not stop a backend job
// that is still executing; the substrate keeps running it to completion.
func (s *Service) DeleteRun(ctx context.Context, identifier string) error {
	userID, err := s.repo.GetUserID(ctx, s.username)
	if err != nil {
		return apperrors.Internal("repository.getUser", err)
	}
	if err := s.repo.DeleteRun(ctx, userID, identifier); err != nil {
		return err
	}
	slog.Info("Run deleted", "runIdentifier", identifier)
	return nil
}

// view projects a run record into its caller-facing shape, attaching the
// dataset name when the data source is still loadable.
func (s *Service) view(ctx context.Context, record *Run) RunView {
	v := RunView{
		RunIdentifier: record.Identifier,
		Description:   record.Description,
		RunAt:         record.RunAt,
		Status:        record.Status,
		Logs:          record.Logs,
		OutputPath:    record.OutputPath,
		LastRunAt:     record.LastRunAt,
	}
	if record.DataSourceID != "" {
		if ds, err := s.repo.GetDataSource(ctx, record.DataSourceID); err == nil {
			v.DatasetName = ds.Name
		}
	}
	return v
}

func (s *Service) registeredTargets() []string {
	targets := make([]string, 0, len(s.backends))
	for t := range s.backends {
		targets = append(targets, t)
	}
	sort.Strings(targets)
	return targets
}

// datasetName derives a human-readable data source name from the submission.
func datasetName(req *SubmitRequest) string {
	if req.DandisetID != "" {
		if req.DandisetFilePath != "" {
			return req.DandisetID + " - " + req.DandisetFilePath
		}
		return req.DandisetID
	}
	return req.SourceName + " - " + req.RunIdentifier
}
