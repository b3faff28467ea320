// Package taskqueue provides the machine's admission queue: a FIFO of
// deferred tasks with front insertion for retried tasks, which take
// priority over fresh submissions.
package taskqueue

import "github.com/okanri/machina/pkg/api"

// Queue holds tasks deferred by the admission capacity check.
//
// PopFront never blocks; the engine drains the queue opportunistically
// as capacity frees up.
type Queue interface {
	// PushBack appends a freshly deferred task.
	PushBack(t api.TaskDefinition) error

	// PushFront inserts a retried task ahead of fresh submissions.
	PushFront(t api.TaskDefinition) error

	// PopFront removes and returns the next task, reporting false when
	// the queue is empty.
	PopFront() (api.TaskDefinition, bool, error)

	// Len returns the number of queued tasks.
	Len() int
}
