package run

import (
	"context"
	"fmt"
	"log/slog"

	"sortruns/internal/observability"
)

// Reconciler derives the current state of a run from its owning backend and
// persists transitions.
//
// Terminal states are cached: once success or fail has been observed and
// persisted, no backend is contacted again for that run. Any failure while
// querying a backend degrades to "still running" with the error text surfaced
// as logs; the caller always receives a view, never an error.
type Reconciler struct {
	repo     Repository
	backends map[string]Backend
	metrics  *observability.Metrics
}

// NewReconciler creates a reconciler over the given backends, keyed by
// execution target.
func NewReconciler(repo Repository, backends map[string]Backend, metrics *observability.Metrics) *Reconciler {
	return &Reconciler{
		repo:     repo,
		backends: backends,
		metrics:  metrics,
	}
}

// Reconcile returns the freshest knowable state of a run.
//
// The argument is not mutated; the returned run reflects what was (or could
// not be) learned from the backend. Persistence failures are logged but do
// not fail the reconciliation: the derived view is still returned.
func (rec *Reconciler) Reconcile(ctx context.Context, r *Run) *Run {
	if r.Status.Terminal() {
		return r
	}

	logger := slog.With("runIdentifier", r.Identifier, "runAt", r.RunAt)

	backend, ok := rec.backends[r.RunAt]
	if !ok {
		degraded := *r
		degraded.Logs = fmt.Sprintf("no backend registered for execution target %q", r.RunAt)
		return &degraded
	}

	state, logs, err := backend.StatusAndLogs(ctx, r.Identifier)
	if err != nil {
		// Transient lookup failure: status stays running, next poll retries.
		logger.Error("Run status retrieval failed", "error", err)
		degraded := *r
		degraded.Logs = fmt.Sprintf("Could not retrieve run status: %v", err)
		return &degraded
	}

	if state == StateUnknown {
		state = StateRunning
	}

	updated := *r
	updated.Status = state
	updated.Logs = logs

	if err := rec.repo.UpdateRunStatus(ctx, r.UserID, r.Identifier, state, logs); err != nil {
		logger.Error("Failed to persist run status", "error", err)
	}

	if state.Terminal() {
		if rec.metrics != nil {
			rec.metrics.RecordRunReconciled(ctx, r.RunAt, string(state))
		}
		logger.Info("Run reached terminal state", "status", state)
	}

	return &updated
}
