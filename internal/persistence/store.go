// Package persistence provides the optional snapshot store collaborator:
// a machine wired with a SnapshotStore persists every state record it
// leaves and every terminal task result it records.
package persistence

import (
	"errors"

	"github.com/okanri/machina/pkg/api"
)

var (
	// ErrResultNotFound is returned when no terminal result exists for
	// a task id.
	ErrResultNotFound = errors.New("task result not found")
)

// SnapshotStore persists state history and task results for one or more
// workers. Implementations must be safe for concurrent use.
type SnapshotStore interface {
	// SaveState appends a state record to the worker's history.
	SaveState(workerID string, s api.WorkerState) error

	// ListStates returns up to limit most recent state records for the
	// worker, oldest first. limit <= 0 means no limit.
	ListStates(workerID string, limit int) ([]api.WorkerState, error)

	// SaveResult stores a terminal task result, replacing any previous
	// result for the same task id.
	SaveResult(workerID string, r *api.TaskResult) error

	// GetResult returns the terminal result for a task.
	GetResult(workerID, taskID string) (*api.TaskResult, error)

	// ListResults returns all terminal results for the worker.
	ListResults(workerID string) ([]*api.TaskResult, error)
}
