package api

import (
	"context"
	"time"
)

// GuardFunc gates a transition. It is evaluated over the merged current
// context plus the caller-supplied context. Returning false rejects the
// transition and leaves the state unchanged.
type GuardFunc func(ctx map[string]any) bool

// ActionFunc is an optional asynchronous compensating or side-effecting
// action run while a transition is applied. It receives the merged
// context and returns a patch merged back into it. The action runs under
// a bounded timeout; failure (including timeout) aborts the transition
// with the state unchanged.
//
// Actions must not call back into the machine that invokes them.
type ActionFunc func(ctx context.Context, state map[string]any) (map[string]any, error)

// StateTransitionRule maps (From, Trigger) to a target state. From may be
// AnyState; an exact (state, trigger) rule always wins over a wildcard
// rule for the same trigger.
type StateTransitionRule struct {
	From    string
	To      string
	Trigger string

	Guard  GuardFunc
	Action ActionFunc

	// Timeout bounds Action. Zero means DefaultActionTimeout.
	Timeout time.Duration
}

// DefaultActionTimeout bounds transition actions that do not declare
// their own timeout.
const DefaultActionTimeout = 30 * time.Second

// Built-in triggers fired by the engine itself. Domains may register
// rules for them; missing rules are tolerated (the trigger is dropped).
const (
	// TriggerStartTask fires when a task is admitted while the current
	// state is not of type busy.
	TriggerStartTask = "startTask"

	// TriggerCompleteTask fires when the active set empties while the
	// current state is of type busy.
	TriggerCompleteTask = "completeTask"

	// TriggerRecover re-enters the graph after a successful recovery.
	TriggerRecover = "recover"
)
