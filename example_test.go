package machina_test

import (
	"context"
	"fmt"

	"github.com/okanri/machina"
	"github.com/okanri/machina/pkg/resourceworker"
)

// Example provisions a resource and scales it when the cpu gauge
// crosses the scaling threshold.
func Example() {
	domain := resourceworker.New()
	m, err := machina.New(resourceworker.DefaultConfig("resource-worker-1"), domain)
	if err != nil {
		panic(err)
	}

	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		panic(err)
	}
	defer m.Stop()

	res, err := m.ExecuteTask(ctx, machina.TaskDefinition{
		ID:      "t-provision",
		Type:    resourceworker.TaskProvision,
		Payload: resourceworker.ProvisionSpec{Name: "web-frontend"},
	})
	if err != nil {
		panic(err)
	}
	report := res.Output.(resourceworker.ProvisionReport)
	fmt.Println("provisioned:", report.ResourceID)
	fmt.Println("state:", m.CurrentState().Name)

	// High cpu lets the scaleRequired guard pass.
	domain.SetGauge("cpu", 85)
	if err := m.Transition(ctx, resourceworker.TriggerScaleRequired, nil); err != nil {
		panic(err)
	}
	fmt.Println("state:", m.CurrentState().Name)

	// Output:
	// provisioned: res-1
	// state: monitoring
	// state: scaling
}

// ExampleNewGraph declares a minimal custom graph with the fluent
// builder.
func ExampleNewGraph() {
	graph := machina.NewGraph("idle").
		State("idle", machina.StateIdle).
		State("working", machina.StateBusy).
		State("failed", machina.StateError).
		State("done", machina.StateIdle).
		Transition("idle", "working", machina.TriggerStartTask).
		Transition("working", "idle", machina.TriggerCompleteTask).
		Transition(machina.AnyState, "failed", "errorDetected").
		Transition("failed", "idle", machina.TriggerRecover).
		Transition("idle", "done", "shutdown").
		Final("done").
		Build()

	fmt.Println(graph.Initial, len(graph.States), len(graph.Transitions))
	// Output: idle 4 5
}
