// Package run defines the run lifecycle coordinator, the Backend interface,
// and run-related types.
package run

import "context"

// Backend executes sorting runs on one execution substrate.
//
// Exactly two implementations exist: the local Docker worker and the AWS
// Batch client. The coordinator selects one at dispatch time by the run's
// execution target; adding a substrate means adding one implementation, not
// threading a new conditional through call sites.
//
// Submit does not wait for completion: pipeline runs take minutes to hours
// and completion is only discoverable through StatusAndLogs polling.
// StatusAndLogs errors are classified at the reconciliation boundary, so
// implementations return errors freely rather than swallowing them.
type Backend interface {
	// Submit starts execution of the job. Returns once the substrate has
	// accepted the work.
	Submit(ctx context.Context, spec *JobSpec) error

	// StatusAndLogs reports the current execution state and captured logs
	// for a run previously submitted with the given identifier.
	StatusAndLogs(ctx context.Context, identifier string) (State, string, error)

	// Target returns the execution target this backend serves.
	Target() string

	// Ready checks if the backend's substrate is reachable.
	Ready(ctx context.Context) error
}
