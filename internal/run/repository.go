package run

import "context"

// Repository is the durable store of run and data-source records.
//
// Implementations execute every multi-step mutation inside a single scoped
// transaction that commits on success and rolls back on any error, so a
// caller never observes a partially written submission. Update and delete
// are idempotent: addressing a nonexistent identifier yields
// apperrors.ErrNotFound rather than a panic or a silent no-op.
type Repository interface {
	// CreateSubmission persists a data source and its run record atomically.
	// The run must reference the data source; IDs are assigned by the
	// implementation if empty.
	CreateSubmission(ctx context.Context, ds *DataSource, r *Run) error

	// GetRun loads a run by its caller-facing identifier within a user scope.
	GetRun(ctx context.Context, userID, identifier string) (*Run, error)

	// GetDataSource loads a data source by ID.
	GetDataSource(ctx context.Context, id string) (*DataSource, error)

	// ListRuns returns all runs owned by a user, most recent first.
	ListRuns(ctx context.Context, userID string) ([]*Run, error)

	// UpdateRunStatus writes the status and captured logs of a run.
	UpdateRunStatus(ctx context.Context, userID, identifier string, status State, logs string) error

	// DeleteRun removes a run record. The owning data source is kept; it is
	// only removed by user-cascade.
	DeleteRun(ctx context.Context, userID, identifier string) error

	// GetUserID resolves a username to its user ID, creating the account on
	// first use.
	GetUserID(ctx context.Context, username string) (string, error)
}
