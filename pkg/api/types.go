package api

import (
	"maps"
	"time"
)

// StateType classifies a declared state. The engine uses it to decide
// when to fire the internal startTask/completeTask triggers and when the
// background sampler is allowed to run.
type StateType string

const (
	StateIdle        StateType = "idle"
	StateActive      StateType = "active"
	StateBusy        StateType = "busy"
	StateError       StateType = "error"
	StateMaintenance StateType = "maintenance"
)

// Priority orders tasks for human consumption; the admission queue itself
// is FIFO (retries excepted, which re-enter at the front).
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// WorkerState is the machine's current-state record. A fresh record is
// built on every transition; Context is carried over and merged.
type WorkerState struct {
	ID   string
	Name string
	Type StateType

	// Context is an open key-value map carried across transitions.
	// Transition actions return patches that are merged into it.
	Context map[string]any

	EnteredAt time.Time

	// Duration is the dwell time of this state. It is zero while the
	// state is current and is computed when the state is left.
	Duration time.Duration

	// RetryCount counts machine-level recovery attempts made while this
	// state is current. It resets on every transition.
	RetryCount int
	LastError  string
}

// Clone returns a deep-enough copy: the Context map is copied so that
// callers can inspect a snapshot without racing the machine.
func (s WorkerState) Clone() WorkerState {
	out := s
	if s.Context != nil {
		out.Context = maps.Clone(s.Context)
	}
	return out
}

// TaskDefinition describes a unit of work submitted to a machine.
type TaskDefinition struct {
	ID       string
	Type     string
	Priority Priority

	// Payload is domain-specific and interpreted by Domain.PerformTask.
	Payload any

	CreatedAt time.Time
	Deadline  time.Time

	// DependsOn and RequiredCapabilities are descriptive metadata for
	// external schedulers; the engine does not enforce them.
	DependsOn            []string
	RequiredCapabilities []string
}

// TaskStatus is the terminal status of a task execution.
type TaskStatus string

const (
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskPartial   TaskStatus = "partial"
)

// ResourceUsage is a named-gauge snapshot (cpu, memory, queue_depth, ...).
type ResourceUsage map[string]float64

// Clone copies the snapshot.
func (u ResourceUsage) Clone() ResourceUsage {
	if u == nil {
		return nil
	}
	return maps.Clone(u)
}

// TaskResult records one task execution. Exactly one terminal result is
// recorded per admitted task; failed attempts that will be retried are
// returned to the caller but never recorded.
type TaskResult struct {
	TaskID string
	Status TaskStatus
	Output any

	StartedAt  time.Time
	FinishedAt time.Time
	Usage      ResourceUsage
	Errors     []string
}

// CapabilityType classifies a declared capability.
type CapabilityType string

const (
	CapabilityCore        CapabilityType = "core"
	CapabilityEnhanced    CapabilityType = "enhanced"
	CapabilitySpecialized CapabilityType = "specialized"
)

// Capability is a versioned feature descriptor attached to a worker.
// It is informational only; the engine does not enforce capabilities.
type Capability struct {
	ID            string         `yaml:"id"`
	Name          string         `yaml:"name"`
	Type          CapabilityType `yaml:"type"`
	Version       string         `yaml:"version"`
	Enabled       bool           `yaml:"enabled"`
	Configuration map[string]any `yaml:"configuration,omitempty"`
}

// MergeContext overlays patch onto base and returns a new map. Neither
// input is modified. A nil patch returns a copy of base.
func MergeContext(base, patch map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(patch))
	maps.Copy(out, base)
	maps.Copy(out, patch)
	return out
}
