// Package machina is an embeddable worker state machine.
//
// A machine drives one domain-specialized worker through a declared
// state graph: states carry a classification (idle, active, busy,
// error, maintenance), transitions are guarded rules fired by triggers,
// and tasks are admitted against a per-state compatibility table with a
// bounded concurrency slot pool and a FIFO overflow queue.
//
// The behavior that makes a worker a resource manager or a research
// pipeline lives behind the Domain interface; the engine owns
// everything generic: rule lookup, guard and action execution,
// capacity, task retries with front-of-queue re-entry, machine-level
// recovery with backoff, lifecycle events, bounded state history, and
// background resource sampling.
//
// Construct a machine with New for in-memory collaborators or
// NewSQLiteBundle for durable snapshots and queueing. Two reference
// domains ship under pkg/resourceworker and pkg/pipelineworker;
// pkg/promexport bridges lifecycle events and gauges to Prometheus.
package machina
