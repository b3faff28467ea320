package api

import (
	"log/slog"
	"sync/atomic"
)

// Observer receives machine lifecycle events for logging and metrics.
//
// Events are delivered by a single dispatcher goroutine per machine, in
// emission order. Implementations should be fast; heavy work belongs in
// the implementation's own goroutines.
type Observer interface {
	// OnStateChanged is called after every applied transition,
	// including the unguarded set-state used by recovery.
	OnStateChanged(e Event)

	// OnTaskCompleted is called once per task that reaches a terminal
	// completed result. e.Result carries the recorded result.
	OnTaskCompleted(e Event)

	// OnTaskFailed is called once per task dropped after exhausting its
	// retry budget. Intermediate failed attempts are not reported.
	OnTaskFailed(e Event)

	// OnErrorState is called when the machine enters a state of type
	// error.
	OnErrorState(e Event)

	// OnMaintenanceMode is called when the machine enters a state of
	// type maintenance.
	OnMaintenanceMode(e Event)

	// OnResourceLimitExceeded is called when a sampled gauge crosses
	// its configured limit (once per crossing, not per sample).
	OnResourceLimitExceeded(e Event)

	// OnStateTimeout is called when dwell time in a state exceeds its
	// declared timeout (once per state entry).
	OnStateTimeout(e Event)

	// OnMaxRetriesExceeded is called when machine-level recovery gives
	// up and forces the terminal error state.
	OnMaxRetriesExceeded(e Event)
}

// NoopObserver is an Observer that does nothing. It is the default when
// no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnStateChanged(Event)          {}
func (NoopObserver) OnTaskCompleted(Event)         {}
func (NoopObserver) OnTaskFailed(Event)            {}
func (NoopObserver) OnErrorState(Event)            {}
func (NoopObserver) OnMaintenanceMode(Event)       {}
func (NoopObserver) OnResourceLimitExceeded(Event) {}
func (NoopObserver) OnStateTimeout(Event)          {}
func (NoopObserver) OnMaxRetriesExceeded(Event)    {}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnStateChanged(e Event) {
	for _, o := range c.observers {
		o.OnStateChanged(e)
	}
}

func (c *CompositeObserver) OnTaskCompleted(e Event) {
	for _, o := range c.observers {
		o.OnTaskCompleted(e)
	}
}

func (c *CompositeObserver) OnTaskFailed(e Event) {
	for _, o := range c.observers {
		o.OnTaskFailed(e)
	}
}

func (c *CompositeObserver) OnErrorState(e Event) {
	for _, o := range c.observers {
		o.OnErrorState(e)
	}
}

func (c *CompositeObserver) OnMaintenanceMode(e Event) {
	for _, o := range c.observers {
		o.OnMaintenanceMode(e)
	}
}

func (c *CompositeObserver) OnResourceLimitExceeded(e Event) {
	for _, o := range c.observers {
		o.OnResourceLimitExceeded(e)
	}
}

func (c *CompositeObserver) OnStateTimeout(e Event) {
	for _, o := range c.observers {
		o.OnStateTimeout(e)
	}
}

func (c *CompositeObserver) OnMaxRetriesExceeded(e Event) {
	for _, o := range c.observers {
		o.OnMaxRetriesExceeded(e)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs lifecycle events
// using the provided slog.Logger. If logger is nil, slog.Default() is
// used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnStateChanged(e Event) {
	o.Logger.Info("state_changed",
		slog.String("worker", e.WorkerID),
		slog.String("from", e.From),
		slog.String("to", e.To),
		slog.String("trigger", e.Trigger),
	)
}

func (o *LoggingObserver) OnTaskCompleted(e Event) {
	o.Logger.Info("task_completed",
		slog.String("worker", e.WorkerID),
		slog.String("task_id", e.TaskID),
	)
}

func (o *LoggingObserver) OnTaskFailed(e Event) {
	o.Logger.Error("task_failed",
		slog.String("worker", e.WorkerID),
		slog.String("task_id", e.TaskID),
		slog.String("error", e.Err),
	)
}

func (o *LoggingObserver) OnErrorState(e Event) {
	o.Logger.Error("error_state",
		slog.String("worker", e.WorkerID),
		slog.String("state", e.To),
		slog.String("error", e.Err),
	)
}

func (o *LoggingObserver) OnMaintenanceMode(e Event) {
	o.Logger.Warn("maintenance_mode",
		slog.String("worker", e.WorkerID),
		slog.String("state", e.To),
	)
}

func (o *LoggingObserver) OnResourceLimitExceeded(e Event) {
	o.Logger.Warn("resource_limit_exceeded",
		slog.String("worker", e.WorkerID),
		slog.String("gauge", e.Gauge),
		slog.Float64("value", e.Value),
		slog.Float64("limit", e.Limit),
	)
}

func (o *LoggingObserver) OnStateTimeout(e Event) {
	o.Logger.Warn("state_timeout",
		slog.String("worker", e.WorkerID),
		slog.String("state", e.State),
		slog.Duration("dwell", e.Dwell),
	)
}

func (o *LoggingObserver) OnMaxRetriesExceeded(e Event) {
	o.Logger.Error("max_retries_exceeded",
		slog.String("worker", e.WorkerID),
		slog.String("error", e.Err),
	)
}

// BasicMetrics collects simple counters from lifecycle events. It
// implements Observer and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	transitions    atomic.Int64
	tasksCompleted atomic.Int64
	tasksFailed    atomic.Int64
	errorStates    atomic.Int64
	limitAlerts    atomic.Int64
	stateTimeouts  atomic.Int64
	recoveryGiveUp atomic.Int64
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	Transitions         int64
	TasksCompleted      int64
	TasksFailed         int64
	ErrorStates         int64
	ResourceLimitAlerts int64
	StateTimeouts       int64
	MaxRetriesExceeded  int64
}

func (m *BasicMetrics) OnStateChanged(Event)          { m.transitions.Add(1) }
func (m *BasicMetrics) OnTaskCompleted(Event)         { m.tasksCompleted.Add(1) }
func (m *BasicMetrics) OnTaskFailed(Event)            { m.tasksFailed.Add(1) }
func (m *BasicMetrics) OnErrorState(Event)            { m.errorStates.Add(1) }
func (m *BasicMetrics) OnResourceLimitExceeded(Event) { m.limitAlerts.Add(1) }
func (m *BasicMetrics) OnStateTimeout(Event)          { m.stateTimeouts.Add(1) }
func (m *BasicMetrics) OnMaxRetriesExceeded(Event)    { m.recoveryGiveUp.Add(1) }

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	return BasicMetricsSnapshot{
		Transitions:         m.transitions.Load(),
		TasksCompleted:      m.tasksCompleted.Load(),
		TasksFailed:         m.tasksFailed.Load(),
		ErrorStates:         m.errorStates.Load(),
		ResourceLimitAlerts: m.limitAlerts.Load(),
		StateTimeouts:       m.stateTimeouts.Load(),
		MaxRetriesExceeded:  m.recoveryGiveUp.Load(),
	}
}

// Dispatch routes an event to the matching Observer callback. It is used
// by the engine's dispatcher goroutine and by tests that feed observers
// directly.
func Dispatch(o Observer, e Event) {
	switch e.Type {
	case EventStateChanged:
		o.OnStateChanged(e)
	case EventTaskCompleted:
		o.OnTaskCompleted(e)
	case EventTaskFailed:
		o.OnTaskFailed(e)
	case EventErrorState:
		o.OnErrorState(e)
	case EventMaintenanceMode:
		o.OnMaintenanceMode(e)
	case EventResourceLimitExceeded:
		o.OnResourceLimitExceeded(e)
	case EventStateTimeout:
		o.OnStateTimeout(e)
	case EventMaxRetriesExceeded:
		o.OnMaxRetriesExceeded(e)
	}
}
