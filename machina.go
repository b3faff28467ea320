package machina

import (
	"context"

	"github.com/okanri/machina/internal/engine"
	"github.com/okanri/machina/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Machine              = api.Machine
	Domain               = api.Domain
	Config               = api.Config
	Policy               = api.Policy
	RetryPolicy          = api.RetryPolicy
	StateGraph           = api.StateGraph
	StateDecl            = api.StateDecl
	TransitionDecl       = api.TransitionDecl
	StateTransitionRule  = api.StateTransitionRule
	GuardFunc            = api.GuardFunc
	ActionFunc           = api.ActionFunc
	WorkerState          = api.WorkerState
	TaskDefinition       = api.TaskDefinition
	TaskResult           = api.TaskResult
	ResourceUsage        = api.ResourceUsage
	Capability           = api.Capability
	Event                = api.Event
	EventType            = api.EventType
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
)

// Re-export common observer helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
)

// Re-export config loading.

var LoadConfig = api.LoadConfig

// Re-export state classifications for convenience.

const (
	StateIdle        = api.StateIdle
	StateActive      = api.StateActive
	StateBusy        = api.StateBusy
	StateError       = api.StateError
	StateMaintenance = api.StateMaintenance
)

// Re-export the engine-owned triggers and the wildcard state name.

const (
	AnyState            = api.AnyState
	TriggerStartTask    = api.TriggerStartTask
	TriggerCompleteTask = api.TriggerCompleteTask
	TriggerRecover      = api.TriggerRecover
)

// Re-export terminal task statuses.

const (
	TaskCompleted = api.TaskCompleted
	TaskFailed    = api.TaskFailed
	TaskPartial   = api.TaskPartial
)

// Re-export backoff strategies.

const (
	BackoffLinear      = api.BackoffLinear
	BackoffExponential = api.BackoffExponential
)

// Re-export sentinel errors callers branch on.

var (
	ErrQueued                 = api.ErrQueued
	ErrStateIncompatible      = api.ErrStateIncompatible
	ErrNoTransitionRule       = api.ErrNoTransitionRule
	ErrGuardRejected          = api.ErrGuardRejected
	ErrTransitionActionFailed = api.ErrTransitionActionFailed
	ErrUnknownState           = api.ErrUnknownState
	ErrTaskExecutionTimeout   = api.ErrTaskExecutionTimeout
	ErrTaskRetriesExceeded    = api.ErrTaskRetriesExceeded
	ErrStateRetriesExceeded   = api.ErrStateRetriesExceeded
	ErrMachineStopped         = api.ErrMachineStopped
)

// Machine options.
// These wrap the internal/engine package so external callers never need
// to import internal packages.

type Option = engine.Option

var (
	WithObserver       = engine.WithObserver
	WithSampleInterval = engine.WithSampleInterval
	WithHostGauges     = engine.WithHostGauges
)

// New builds a machine over the given domain with in-memory
// collaborators. Use NewSQLiteBundle for durable snapshots and queueing.
func New(cfg Config, domain Domain, opts ...Option) (Machine, error) {
	return engine.New(cfg, domain, opts...)
}

// NewWithObserver is New with an observer attached.
func NewWithObserver(cfg Config, domain Domain, obs Observer, opts ...Option) (Machine, error) {
	return engine.New(cfg, domain, append([]Option{engine.WithObserver(obs)}, opts...)...)
}

// Convenience helpers that just forward to the underlying Machine.

// Execute admits and executes a task on the machine.
func Execute(ctx context.Context, m Machine, task TaskDefinition) (*TaskResult, error) {
	return m.ExecuteTask(ctx, task)
}

// Fire fires a trigger without call context.
func Fire(ctx context.Context, m Machine, trigger string) error {
	return m.Transition(ctx, trigger, nil)
}

// Recover runs machine-level recovery for the given cause.
//
// It is typically called by the component that observed the failure:
//
//	if err := machina.Recover(ctx, m, cause); err != nil { ... }
func Recover(ctx context.Context, m Machine, cause error) error {
	return m.RecoverFromError(ctx, cause)
}
