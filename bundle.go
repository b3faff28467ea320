package machina

import (
	"database/sql"

	"github.com/okanri/machina/internal/engine"
	"github.com/okanri/machina/internal/persistence"
	"github.com/okanri/machina/internal/taskqueue"
	"github.com/okanri/machina/pkg/api"
)

// MachineBundle wires together a Machine, a durable state-snapshot
// store, and a durable admission queue sharing one database. Queued
// tasks and state records survive a process restart.
//
// For now, only a SQLite-backed bundle is provided.
type MachineBundle struct {
	Machine Machine

	// store and queue are kept unexported; they are primarily useful
	// for internal inspection and tests. The public API is Machine.
	store persistence.SnapshotStore
	queue taskqueue.Queue
}

// NewSQLiteBundle constructs a durable Machine over the provided
// *sql.DB. State snapshots and the admission queue live in the same
// database; the queue is scoped by the worker id, so many machines may
// share one database file.
//
// Typical usage:
//
//	db, _ := sql.Open("sqlite", "file:machina.db?_journal=WAL")
//	bundle, err := machina.NewSQLiteBundle(db, cfg, domain)
//	// drive bundle.Machine
func NewSQLiteBundle(db *sql.DB, cfg Config, domain Domain, opts ...Option) (*MachineBundle, error) {
	store, err := persistence.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}

	q, err := taskqueue.NewSQLiteQueue(db, cfg.WorkerID)
	if err != nil {
		return nil, err
	}

	wired := append([]Option{
		engine.WithSnapshotStore(store),
		engine.WithQueue(q),
	}, opts...)

	m, err := engine.New(cfg, domain, wired...)
	if err != nil {
		return nil, err
	}

	return &MachineBundle{Machine: m, store: store, queue: q}, nil
}

// StoredStates returns the persisted state records for the bundle's
// worker, oldest first. Mainly useful for inspection after a restart.
func (b *MachineBundle) StoredStates() ([]api.WorkerState, error) {
	return b.store.ListStates(b.Machine.ID(), 0)
}

// StoredResult returns the persisted terminal result for a task.
func (b *MachineBundle) StoredResult(taskID string) (*api.TaskResult, error) {
	return b.store.GetResult(b.Machine.ID(), taskID)
}
