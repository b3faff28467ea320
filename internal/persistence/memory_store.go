package persistence

import (
	"sync"

	"github.com/okanri/machina/pkg/api"
)

// MemoryStore is a simple, goroutine-safe SnapshotStore backed by maps.
type MemoryStore struct {
	mu      sync.RWMutex
	states  map[string][]api.WorkerState
	results map[string]map[string]*api.TaskResult
}

// NewMemoryStore creates a new MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states:  make(map[string][]api.WorkerState),
		results: make(map[string]map[string]*api.TaskResult),
	}
}

var _ SnapshotStore = (*MemoryStore)(nil)

func (s *MemoryStore) SaveState(workerID string, st api.WorkerState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[workerID] = append(s.states[workerID], st.Clone())
	return nil
}

func (s *MemoryStore) ListStates(workerID string, limit int) ([]api.WorkerState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.states[workerID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]api.WorkerState, len(all))
	for i, st := range all {
		out[i] = st.Clone()
	}
	return out, nil
}

func (s *MemoryStore) SaveResult(workerID string, r *api.TaskResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byTask := s.results[workerID]
	if byTask == nil {
		byTask = make(map[string]*api.TaskResult)
		s.results[workerID] = byTask
	}
	cp := *r
	byTask[r.TaskID] = &cp
	return nil
}

func (s *MemoryStore) GetResult(workerID, taskID string) (*api.TaskResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.results[workerID][taskID]
	if !ok {
		return nil, ErrResultNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) ListResults(workerID string) ([]*api.TaskResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byTask := s.results[workerID]
	out := make([]*api.TaskResult, 0, len(byTask))
	for _, r := range byTask {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}
