package machina

import (
	"fmt"
	"time"

	"github.com/okanri/machina/pkg/api"
)

// GraphBuilder provides a fluent API for declaring state graphs:
//
//	graph := machina.NewGraph("idle").
//	    State("idle", machina.StateIdle).
//	    State("working", machina.StateBusy).
//	    State("failed", machina.StateError).
//	    Transition("idle", "working", machina.TriggerStartTask).
//	    Transition("working", "idle", machina.TriggerCompleteTask).
//	    Transition(machina.AnyState, "failed", "errorDetected").
//	    Build()
//
// Build validates the graph and panics on a malformed declaration;
// graphs are static program structure, so a bad one is a programming
// error, not a runtime condition.
type GraphBuilder struct {
	graph api.StateGraph
}

// NewGraph creates a builder whose initial state is the given name. The
// state itself must still be declared with State.
func NewGraph(initial string) *GraphBuilder {
	if initial == "" {
		panic("machina: initial state name must not be empty")
	}
	return &GraphBuilder{graph: api.StateGraph{Initial: initial}}
}

// State declares a state.
func (b *GraphBuilder) State(name string, typ api.StateType) *GraphBuilder {
	if name == "" {
		panic("machina: state name must not be empty")
	}
	b.graph.States = append(b.graph.States, api.StateDecl{Name: name, Type: typ})
	return b
}

// StateWithTimeout declares a state with a dwell-time alarm. The
// sampler emits a stateTimeout event when the machine stays in the
// state longer than d.
func (b *GraphBuilder) StateWithTimeout(name string, typ api.StateType, d time.Duration) *GraphBuilder {
	if name == "" {
		panic("machina: state name must not be empty")
	}
	b.graph.States = append(b.graph.States, api.StateDecl{Name: name, Type: typ, Timeout: d})
	return b
}

// Transition declares an edge. Use machina.AnyState as from for a
// wildcard edge.
func (b *GraphBuilder) Transition(from, to, trigger string) *GraphBuilder {
	if trigger == "" {
		panic(fmt.Sprintf("machina: transition %s -> %s has empty trigger", from, to))
	}
	b.graph.Transitions = append(b.graph.Transitions, api.TransitionDecl{From: from, To: to, Trigger: trigger})
	return b
}

// Final marks states as terminal. Final states accept no outgoing
// transitions at runtime.
func (b *GraphBuilder) Final(names ...string) *GraphBuilder {
	b.graph.Finals = append(b.graph.Finals, names...)
	return b
}

// Graph returns the accumulated graph without validating it. Typically
// used when the graph is handed to Config, which validates at machine
// construction.
func (b *GraphBuilder) Graph() api.StateGraph {
	return b.graph
}

// Build validates and returns the graph, panicking on error.
func (b *GraphBuilder) Build() api.StateGraph {
	if err := b.graph.Validate(); err != nil {
		panic(fmt.Sprintf("machina: invalid state graph: %v", err))
	}
	return b.graph
}
