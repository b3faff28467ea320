package api

import (
	"fmt"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// AnyState is the wildcard source for transition rules that apply from
// every state (global error capture, shutdown).
const AnyState = "*"

// StateDecl declares a single state of a graph.
type StateDecl struct {
	Name string    `yaml:"name"`
	Type StateType `yaml:"type"`

	// Timeout, when positive, is the dwell time after which the machine
	// emits a stateTimeout event. It never forces a transition.
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// UnmarshalYAML accepts Go duration syntax ("5m") for timeout.
func (s *StateDecl) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Name    string    `yaml:"name"`
		Type    StateType `yaml:"type"`
		Timeout string    `yaml:"timeout"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	d, err := parseDuration(raw.Timeout)
	if err != nil {
		return fmt.Errorf("state %s: timeout: %w", raw.Name, err)
	}
	*s = StateDecl{Name: raw.Name, Type: raw.Type, Timeout: d}
	return nil
}

// TransitionDecl declares one edge of a graph. From may be AnyState.
type TransitionDecl struct {
	From    string `yaml:"from"`
	To      string `yaml:"to"`
	Trigger string `yaml:"trigger"`
}

// StateGraph is the immutable declarative description of a worker's
// lifecycle: states, transitions, the initial state, and terminal states.
//
// A graph is validated once, at machine construction. Violations are
// programmer errors and surface there, never at runtime.
type StateGraph struct {
	States      []StateDecl      `yaml:"states"`
	Transitions []TransitionDecl `yaml:"transitions"`
	Initial     string           `yaml:"initial"`
	Finals      []string         `yaml:"finals,omitempty"`
}

// Validate checks internal consistency:
//   - state names are non-empty and unique
//   - every transition endpoint names a declared state (the wildcard is
//     allowed as a source only)
//   - Initial is declared
//   - Finals is a subset of declared states
func (g StateGraph) Validate() error {
	if len(g.States) == 0 {
		return fmt.Errorf("state graph declares no states")
	}

	seen := make(map[string]bool, len(g.States))
	for _, s := range g.States {
		if s.Name == "" {
			return fmt.Errorf("state graph contains a state with an empty name")
		}
		if s.Name == AnyState {
			return fmt.Errorf("state name %q is reserved", AnyState)
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate state %q", s.Name)
		}
		seen[s.Name] = true
	}

	for _, t := range g.Transitions {
		if t.Trigger == "" {
			return fmt.Errorf("transition %s -> %s has an empty trigger", t.From, t.To)
		}
		if t.From != AnyState && !seen[t.From] {
			return fmt.Errorf("transition %q: source state %q is not declared", t.Trigger, t.From)
		}
		if !seen[t.To] {
			return fmt.Errorf("transition %q: target state %q is not declared", t.Trigger, t.To)
		}
	}

	if g.Initial == "" {
		return fmt.Errorf("state graph has no initial state")
	}
	if !seen[g.Initial] {
		return fmt.Errorf("initial state %q is not declared", g.Initial)
	}

	for _, f := range g.Finals {
		if !seen[f] {
			return fmt.Errorf("final state %q is not declared", f)
		}
	}

	return nil
}

// State returns the declaration for name.
func (g StateGraph) State(name string) (StateDecl, bool) {
	for _, s := range g.States {
		if s.Name == name {
			return s, true
		}
	}
	return StateDecl{}, false
}

// IsFinal reports whether name is a declared terminal state.
func (g StateGraph) IsFinal(name string) bool {
	return slices.Contains(g.Finals, name)
}
