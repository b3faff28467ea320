// Package resourceworker is a reference machina domain: an
// infrastructure-resource-lifecycle worker that provisions, monitors,
// scales, and maintains resources through a Provisioner adapter.
//
// It exists alongside pipelineworker to exercise the engine contract
// with a different state graph and task vocabulary.
package resourceworker

import (
	"context"
	"encoding/gob"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/okanri/machina/pkg/api"
)

// Payload types must be registered for durable (gob-encoded) queues.
func init() {
	gob.Register(ProvisionSpec{})
	gob.Register(ScaleRequest{})
	gob.Register(GaugeUpdate{})
	gob.Register(ProvisionReport{})
	gob.Register(MonitorReport{})
	gob.Register(ScaleReport{})
	gob.Register(MaintenanceReport{})
	gob.Register(BackupReport{})
	gob.Register(OptimizeReport{})
}

// Task types handled by this domain.
const (
	TaskProvision = "provision"
	TaskMonitor   = "monitor"
	TaskScale     = "scale"
	TaskMaintain  = "maintain"
	TaskBackup    = "backup"
	TaskOptimize  = "optimize"
)

// State names of the resource worker graph.
const (
	StateIdle         = "idle"
	StateProvisioning = "provisioning"
	StateMonitoring   = "monitoring"
	StateScaling      = "scaling"
	StateMaintenance  = "maintenance"
	StateErrored      = "error"
	StateShutdown     = "shutdown"
)

// Domain triggers. startTask/completeTask come from the engine.
const (
	TriggerProvisionRequested  = "provisionRequested"
	TriggerProvisionComplete   = "provisionComplete"
	TriggerScaleRequired       = "scaleRequired"
	TriggerScalingComplete     = "scalingComplete"
	TriggerMaintenanceRequired = "maintenanceRequired"
	TriggerMaintenanceComplete = "maintenanceComplete"
	TriggerErrorDetected       = "errorDetected"
	TriggerShutdown            = "shutdown"
)

// Gauge thresholds for the scaleRequired guard.
const (
	scaleCPUThreshold    = 70.0
	scaleMemoryThreshold = 80.0
)

// Task payloads.
type (
	// ProvisionSpec asks for a new resource.
	ProvisionSpec struct {
		Name string
		Spec map[string]any
	}

	// ScaleRequest resizes an existing resource.
	ScaleRequest struct {
		ResourceID string
		Replicas   int
	}

	// GaugeUpdate feeds fresh gauge readings to a monitor task.
	GaugeUpdate map[string]float64
)

// Reports returned as task outputs.
type (
	ProvisionReport struct {
		ResourceID string
		Name       string
	}

	MonitorReport struct {
		Resources int
		Gauges    api.ResourceUsage
	}

	ScaleReport struct {
		ResourceID   string
		FromReplicas int
		ToReplicas   int
	}

	MaintenanceReport struct {
		Resources int
		Actions   []string
	}

	BackupReport struct {
		Sequence  int
		Resources int
	}

	OptimizeReport struct {
		CPUBefore float64
		CPUAfter  float64
	}
)

type resource struct {
	id        string
	name      string
	replicas  int
	createdAt time.Time
}

// pendingScale remembers an in-flight scaling action so recovery can
// revert it.
type pendingScale struct {
	resourceID string
	from       int
}

// Worker implements api.Domain for the resource lifecycle.
type Worker struct {
	prov Provisioner

	mu        sync.Mutex
	resources map[string]*resource
	gauges    api.ResourceUsage
	backups   int

	// pendingProvision and pendingScale track partially applied
	// operations for the recovery hook's compensating actions.
	pendingProvision string
	pending          *pendingScale
}

// Option configures a Worker.
type Option func(*Worker)

// WithProvisioner replaces the in-memory provisioner with a real
// backend adapter.
func WithProvisioner(p Provisioner) Option {
	return func(w *Worker) {
		if p != nil {
			w.prov = p
		}
	}
}

// New creates a resource worker domain backed by an in-memory
// provisioner unless WithProvisioner overrides it.
func New(opts ...Option) *Worker {
	w := &Worker{
		prov:      NewMemProvisioner(),
		resources: make(map[string]*resource),
		gauges: api.ResourceUsage{
			"cpu":     0,
			"memory":  0,
			"network": 0,
			"storage": 0,
		},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

var _ api.Domain = (*Worker)(nil)

// Graph returns the resource worker's state graph.
func Graph() api.StateGraph {
	return api.StateGraph{
		States: []api.StateDecl{
			{Name: StateIdle, Type: api.StateIdle},
			{Name: StateProvisioning, Type: api.StateBusy, Timeout: 10 * time.Minute},
			{Name: StateMonitoring, Type: api.StateActive},
			{Name: StateScaling, Type: api.StateBusy, Timeout: 5 * time.Minute},
			{Name: StateMaintenance, Type: api.StateMaintenance},
			{Name: StateErrored, Type: api.StateError},
			{Name: StateShutdown, Type: api.StateIdle},
		},
		Transitions: []api.TransitionDecl{
			{From: StateIdle, To: StateProvisioning, Trigger: TriggerProvisionRequested},
			{From: StateIdle, To: StateProvisioning, Trigger: api.TriggerStartTask},
			{From: StateProvisioning, To: StateMonitoring, Trigger: TriggerProvisionComplete},
			{From: StateProvisioning, To: StateMonitoring, Trigger: api.TriggerCompleteTask},
			{From: StateMonitoring, To: StateScaling, Trigger: TriggerScaleRequired},
			{From: StateScaling, To: StateMonitoring, Trigger: TriggerScalingComplete},
			{From: StateScaling, To: StateMonitoring, Trigger: api.TriggerCompleteTask},
			{From: StateMonitoring, To: StateMaintenance, Trigger: TriggerMaintenanceRequired},
			{From: StateMaintenance, To: StateMonitoring, Trigger: TriggerMaintenanceComplete},
			{From: api.AnyState, To: StateErrored, Trigger: TriggerErrorDetected},
			{From: api.AnyState, To: StateMonitoring, Trigger: api.TriggerRecover},
			{From: api.AnyState, To: StateShutdown, Trigger: TriggerShutdown},
		},
		Initial: StateIdle,
		Finals:  []string{StateShutdown},
	}
}

// DefaultConfig returns a ready-to-use machine configuration for this
// domain.
func DefaultConfig(workerID string) api.Config {
	return api.Config{
		WorkerID: workerID,
		Domain:   "resource",
		Capabilities: []api.Capability{
			{ID: "cap-provision", Name: "resource-provisioning", Type: api.CapabilityCore, Version: "1.0.0", Enabled: true},
			{ID: "cap-autoscale", Name: "gauge-driven-scaling", Type: api.CapabilityEnhanced, Version: "1.0.0", Enabled: true},
		},
		Graph: Graph(),
		Policy: api.Policy{
			ResourceLimits: map[string]float64{
				"cpu":    90,
				"memory": 95,
			},
		},
	}.Normalize()
}

// compat is the state/task compatibility table.
var compat = map[string]map[string]bool{
	StateIdle:         {TaskProvision: true},
	StateProvisioning: {TaskProvision: true},
	StateMonitoring:   {TaskMonitor: true, TaskScale: true, TaskBackup: true, TaskOptimize: true, TaskMaintain: true},
	StateScaling:      {TaskScale: true, TaskMonitor: true},
	StateMaintenance:  {TaskMaintain: true, TaskBackup: true, TaskOptimize: true},
}

func (w *Worker) CanHandleTask(stateName string, task api.TaskDefinition) bool {
	return compat[stateName][task.Type]
}

func (w *Worker) PerformTask(ctx context.Context, task api.TaskDefinition, state map[string]any) (any, error) {
	switch task.Type {
	case TaskProvision:
		return w.provision(ctx, task)
	case TaskMonitor:
		return w.monitor(task)
	case TaskScale:
		return w.scale(ctx, task)
	case TaskMaintain:
		return w.maintain()
	case TaskBackup:
		return w.backup()
	case TaskOptimize:
		return w.optimize()
	default:
		return nil, fmt.Errorf("resourceworker: unknown task type %q", task.Type)
	}
}

func (w *Worker) provision(ctx context.Context, task api.TaskDefinition) (any, error) {
	spec, _ := task.Payload.(ProvisionSpec)
	if spec.Name == "" {
		spec.Name = "resource-" + task.ID
	}

	w.mu.Lock()
	w.pendingProvision = spec.Name
	w.mu.Unlock()

	id, err := w.prov.Provision(ctx, spec.Name, spec.Spec)
	if err != nil {
		return nil, fmt.Errorf("provision %q: %w", spec.Name, err)
	}

	w.mu.Lock()
	w.pendingProvision = ""
	w.resources[id] = &resource{id: id, name: spec.Name, replicas: 1, createdAt: time.Now()}
	w.mu.Unlock()

	return ProvisionReport{ResourceID: id, Name: spec.Name}, nil
}

func (w *Worker) monitor(task api.TaskDefinition) (any, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if update, ok := task.Payload.(GaugeUpdate); ok {
		for k, v := range update {
			w.gauges[k] = v
		}
	}
	return MonitorReport{
		Resources: len(w.resources),
		Gauges:    w.gauges.Clone(),
	}, nil
}

func (w *Worker) scale(ctx context.Context, task api.TaskDefinition) (any, error) {
	req, ok := task.Payload.(ScaleRequest)
	if !ok {
		return nil, fmt.Errorf("scale task %s: payload must be a ScaleRequest", task.ID)
	}

	w.mu.Lock()
	res, found := w.resources[req.ResourceID]
	if !found {
		w.mu.Unlock()
		return nil, fmt.Errorf("scale: unknown resource %q", req.ResourceID)
	}
	from := res.replicas
	w.pending = &pendingScale{resourceID: req.ResourceID, from: from}
	w.mu.Unlock()

	if err := w.prov.Scale(ctx, req.ResourceID, req.Replicas); err != nil {
		return nil, fmt.Errorf("scaling %q to %d replicas: %w", req.ResourceID, req.Replicas, err)
	}

	w.mu.Lock()
	res.replicas = req.Replicas
	w.pending = nil
	w.mu.Unlock()

	return ScaleReport{ResourceID: req.ResourceID, FromReplicas: from, ToReplicas: req.Replicas}, nil
}

func (w *Worker) maintain() (any, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	actions := make([]string, 0, len(w.resources))
	for id := range w.resources {
		actions = append(actions, "verified "+id)
	}
	// Maintenance settles transient pressure.
	w.gauges["network"] = 0
	return MaintenanceReport{Resources: len(w.resources), Actions: actions}, nil
}

func (w *Worker) backup() (any, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.backups++
	return BackupReport{Sequence: w.backups, Resources: len(w.resources)}, nil
}

func (w *Worker) optimize() (any, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	before := w.gauges["cpu"]
	w.gauges["cpu"] = before * 0.9
	w.gauges["memory"] = w.gauges["memory"] * 0.9
	return OptimizeReport{CPUBefore: before, CPUAfter: w.gauges["cpu"]}, nil
}

// ResourceUsage returns the live gauge snapshot plus the tracked
// resource count.
func (w *Worker) ResourceUsage() api.ResourceUsage {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := w.gauges.Clone()
	out["resources"] = float64(len(w.resources))
	return out
}

// SetGauge overrides a single gauge reading. Monitoring integrations
// and tests drive the scaling guard through this.
func (w *Worker) SetGauge(name string, value float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.gauges[name] = value
}

// PerformRecovery classifies the error and applies the matching
// compensating action before the engine fires the recover trigger.
func (w *Worker) PerformRecovery(ctx context.Context, cause error) error {
	msg := strings.ToLower(cause.Error())
	switch {
	case strings.Contains(msg, "provision"):
		return w.rollbackProvision(ctx)
	case strings.Contains(msg, "scal"):
		return w.revertScale(ctx)
	default:
		// Transient pressure: settle gauges so the guard landscape is
		// sane after re-entry.
		w.mu.Lock()
		w.gauges["cpu"] = 0
		w.gauges["memory"] = 0
		w.mu.Unlock()
		return nil
	}
}

// rollbackProvision deprovisions a partially created resource.
func (w *Worker) rollbackProvision(ctx context.Context) error {
	w.mu.Lock()
	name := w.pendingProvision
	w.pendingProvision = ""
	var orphan string
	for id, res := range w.resources {
		if res.name == name {
			orphan = id
		}
	}
	if orphan != "" {
		delete(w.resources, orphan)
	}
	w.mu.Unlock()

	if orphan == "" {
		return nil
	}
	if err := w.prov.Deprovision(ctx, orphan); err != nil {
		return fmt.Errorf("rollback of %q: %w", orphan, err)
	}
	return nil
}

// revertScale restores the replica count recorded before the failed
// scaling action.
func (w *Worker) revertScale(ctx context.Context) error {
	w.mu.Lock()
	pending := w.pending
	w.pending = nil
	w.mu.Unlock()

	if pending == nil {
		return nil
	}
	if err := w.prov.Scale(ctx, pending.resourceID, pending.from); err != nil {
		return fmt.Errorf("reverting scale of %q: %w", pending.resourceID, err)
	}
	w.mu.Lock()
	if res, ok := w.resources[pending.resourceID]; ok {
		res.replicas = pending.from
	}
	w.mu.Unlock()
	return nil
}

// TransitionRules returns the complete rule table for the graph above.
func (w *Worker) TransitionRules() []api.StateTransitionRule {
	return []api.StateTransitionRule{
		{From: StateIdle, To: StateProvisioning, Trigger: TriggerProvisionRequested,
			Action: func(ctx context.Context, state map[string]any) (map[string]any, error) {
				return map[string]any{"provision_requested_at": time.Now().UnixNano()}, nil
			}},
		{From: StateIdle, To: StateProvisioning, Trigger: api.TriggerStartTask},
		{From: StateProvisioning, To: StateMonitoring, Trigger: TriggerProvisionComplete},
		{From: StateProvisioning, To: StateMonitoring, Trigger: api.TriggerCompleteTask},
		{From: StateMonitoring, To: StateScaling, Trigger: TriggerScaleRequired, Guard: w.scaleGuard},
		{From: StateScaling, To: StateMonitoring, Trigger: TriggerScalingComplete},
		{From: StateScaling, To: StateMonitoring, Trigger: api.TriggerCompleteTask},
		{From: StateMonitoring, To: StateMaintenance, Trigger: TriggerMaintenanceRequired},
		{From: StateMaintenance, To: StateMonitoring, Trigger: TriggerMaintenanceComplete},
		{From: api.AnyState, To: StateErrored, Trigger: TriggerErrorDetected},
		// Recovered workers resume monitoring; machine-level recovery
		// fires this from any state.
		{From: api.AnyState, To: StateMonitoring, Trigger: api.TriggerRecover},
		{From: api.AnyState, To: StateShutdown, Trigger: TriggerShutdown},
	}
}

// scaleGuard passes only when a live gauge crosses its threshold.
// Call-context readings take precedence over the worker's own gauges,
// so callers can evaluate against a fresh sample.
func (w *Worker) scaleGuard(ctx map[string]any) bool {
	cpu := w.gaugeOr(ctx, "cpu")
	memory := w.gaugeOr(ctx, "memory")
	return cpu > scaleCPUThreshold || memory > scaleMemoryThreshold
}

func (w *Worker) gaugeOr(ctx map[string]any, name string) float64 {
	if v, ok := ctx[name].(float64); ok {
		return v
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.gauges[name]
}
