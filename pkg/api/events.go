package api

import "time"

// EventType identifies a machine lifecycle event.
type EventType string

const (
	EventStateChanged          EventType = "stateChanged"
	EventTaskCompleted         EventType = "taskCompleted"
	EventTaskFailed            EventType = "taskFailed"
	EventErrorState            EventType = "errorState"
	EventMaintenanceMode       EventType = "maintenanceMode"
	EventResourceLimitExceeded EventType = "resourceLimitExceeded"
	EventStateTimeout          EventType = "stateTimeout"
	EventMaxRetriesExceeded    EventType = "maxRetriesExceeded"
)

// Event is a plain lifecycle event record. Events are pushed onto an
// outbound queue and delivered to observers by a dispatcher goroutine,
// so observers never run on the transition path.
//
// It is intentionally small and flat; which fields are set depends on
// Type. Do not put large payloads here.
type Event struct {
	WorkerID string
	Type     EventType
	At       time.Time

	// stateChanged / errorState / maintenanceMode
	From    string
	To      string
	Trigger string

	// taskCompleted / taskFailed
	TaskID string
	Result *TaskResult

	// resourceLimitExceeded
	Gauge string
	Value float64
	Limit float64

	// stateTimeout
	State string
	Dwell time.Duration

	// errorState / maxRetriesExceeded / taskFailed
	Err string
}
