package api

import "context"

// Domain supplies the behavior that specializes a Machine. The engine
// owns the lifecycle (admission, capacity, transitions, retries,
// recovery backoff) and delegates everything domain-specific through
// these five hooks.
type Domain interface {
	// PerformTask executes one task. It runs under the configured task
	// timeout; an error (or timeout) routes the task through the
	// task-level retry path. The state map is a read-only snapshot of
	// the current state's context.
	PerformTask(ctx context.Context, task TaskDefinition, state map[string]any) (any, error)

	// CanHandleTask reports whether the task type is allowed while the
	// named state is current. A static table in practice.
	CanHandleTask(stateName string, task TaskDefinition) bool

	// ResourceUsage returns the domain's named-gauge snapshot. The
	// engine merges it with host gauges and its own queue depth.
	ResourceUsage() ResourceUsage

	// PerformRecovery classifies cause and applies a domain-specific
	// compensating action (roll back a partial provision, clear a
	// failed batch). On success the engine fires the recover trigger.
	PerformRecovery(ctx context.Context, cause error) error

	// TransitionRules returns the domain's complete rule table for its
	// state graph.
	TransitionRules() []StateTransitionRule
}

// Machine drives a single domain-specialized worker through its declared
// state graph. Implementations serialize transition application; tasks
// execute concurrently up to the configured limit.
type Machine interface {
	// ID returns the worker id from the configuration.
	ID() string

	// Start launches the machine's background loops (resource sampler,
	// state-timeout monitor, queue drain workers). The machine is
	// usable without Start, but background sampling and drained-task
	// execution contexts derive from the context given here.
	Start(ctx context.Context) error

	// Stop cancels background loops, waits for in-flight work, and
	// flushes the outbound event queue.
	Stop()

	// CurrentState returns a snapshot of the current state record.
	CurrentState() WorkerState

	// History returns the bounded state history, oldest first.
	History() []WorkerState

	// Transition fires a trigger with an optional call context merged
	// over the state context for guard evaluation and action input.
	Transition(ctx context.Context, trigger string, callCtx map[string]any) error

	// ExecuteTask admits and executes a task. For admitted tasks it
	// always returns a TaskResult; ErrQueued and ErrStateIncompatible
	// are the only synchronous refusals.
	ExecuteTask(ctx context.Context, task TaskDefinition) (*TaskResult, error)

	// RecoverFromError runs machine-level recovery: backoff, the
	// domain's PerformRecovery hook, then the recover trigger. Past the
	// retry budget the machine is forced into the terminal error state.
	RecoverFromError(ctx context.Context, cause error) error

	// Result returns the recorded terminal result for a task, if any.
	Result(taskID string) (*TaskResult, bool)

	// Results returns all recorded terminal results.
	Results() []*TaskResult

	// ActiveCount and QueueLen expose admission bookkeeping.
	ActiveCount() int
	QueueLen() int

	// ResourceUsage returns the merged gauge snapshot: domain gauges,
	// last host sample, and queue depth.
	ResourceUsage() ResourceUsage
}
