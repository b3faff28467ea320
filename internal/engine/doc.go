// Package engine implements the worker state machine behind api.Machine:
// serialized transition application over a validated state graph, task
// admission under a concurrency limit with FIFO deferral, timeout and
// retry semantics for task execution, machine-level recovery with
// backoff, bounded state history, background resource sampling, and an
// outbound lifecycle event queue.
//
// External users construct machines through the root machina package.
package engine
