package api

import "errors"

// Workflow-definition-level errors. These indicate a trigger that the
// current rule table cannot satisfy; the machine state is unchanged.
var (
	// ErrNoTransitionRule is returned when no rule exists for the
	// (current state, trigger) pair, exact or wildcard.
	ErrNoTransitionRule = errors.New("no transition rule")

	// ErrGuardRejected is returned when a rule's guard evaluates false.
	ErrGuardRejected = errors.New("transition guard rejected")

	// ErrTransitionActionFailed is returned when a rule's action returns
	// an error or exceeds its timeout.
	ErrTransitionActionFailed = errors.New("transition action failed")

	// ErrUnknownState is returned by the set-state primitive when the
	// target name is not a declared state.
	ErrUnknownState = errors.New("unknown state")
)

// Task admission and execution errors.
var (
	// ErrStateIncompatible is returned when the domain's compatibility
	// table disallows the task type in the current state. The task is
	// not queued.
	ErrStateIncompatible = errors.New("task incompatible with current state")

	// ErrQueued is a deferral signal, not a failure: admission capacity
	// is exhausted and the task was appended to the queue. It drains
	// once a slot frees up.
	ErrQueued = errors.New("task queued")

	// ErrTaskExecutionTimeout marks a task attempt that exceeded the
	// configured task timeout.
	ErrTaskExecutionTimeout = errors.New("task execution timeout")

	// ErrTaskRetriesExceeded marks a task dropped after exhausting its
	// task-level retry budget.
	ErrTaskRetriesExceeded = errors.New("task retries exceeded")
)

// Machine-level errors.
var (
	// ErrStateRetriesExceeded is returned when machine-level recovery
	// has been attempted more than the configured maximum and the
	// machine was forced into the terminal error state. An explicit
	// recover trigger is required to proceed.
	ErrStateRetriesExceeded = errors.New("state retries exceeded")

	// ErrMachineStopped is returned by operations on a stopped machine.
	ErrMachineStopped = errors.New("machine stopped")
)
