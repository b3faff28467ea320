package taskqueue

import (
	"sync"

	"github.com/okanri/machina/pkg/api"
)

// MemoryQueue is a goroutine-safe in-memory deque. It is the default
// admission queue and the right choice for tests.
type MemoryQueue struct {
	mu    sync.Mutex
	tasks []api.TaskDefinition
}

// NewMemoryQueue creates an empty MemoryQueue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

var _ Queue = (*MemoryQueue)(nil)

func (q *MemoryQueue) PushBack(t api.TaskDefinition) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, t)
	return nil
}

func (q *MemoryQueue) PushFront(t api.TaskDefinition) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append([]api.TaskDefinition{t}, q.tasks...)
	return nil
}

func (q *MemoryQueue) PopFront() (api.TaskDefinition, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 {
		return api.TaskDefinition{}, false, nil
	}
	t := q.tasks[0]
	q.tasks = q.tasks[1:]
	return t, true, nil
}

func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}
