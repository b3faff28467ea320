package engine

import (
	"fmt"

	"github.com/okanri/machina/pkg/api"
)

// ruleTable indexes transition rules for (state, trigger) lookup.
// Exact rules are checked first; wildcard-source rules are a separate
// fallback list, so an exact match always wins for the same trigger.
type ruleTable struct {
	exact    map[string]map[string]api.StateTransitionRule
	wildcard map[string]api.StateTransitionRule
}

// newRuleTable builds and validates the table against the graph: every
// rule endpoint must be declared (the wildcard is allowed as a source
// only), and duplicate (source, trigger) pairs are rejected.
func newRuleTable(g api.StateGraph, rules []api.StateTransitionRule) (*ruleTable, error) {
	t := &ruleTable{
		exact:    make(map[string]map[string]api.StateTransitionRule),
		wildcard: make(map[string]api.StateTransitionRule),
	}

	for _, r := range rules {
		if r.Trigger == "" {
			return nil, fmt.Errorf("rule %s -> %s has an empty trigger", r.From, r.To)
		}
		if _, ok := g.State(r.To); !ok {
			return nil, fmt.Errorf("rule %q: target state %q is not declared", r.Trigger, r.To)
		}

		if r.From == api.AnyState {
			if _, dup := t.wildcard[r.Trigger]; dup {
				return nil, fmt.Errorf("duplicate wildcard rule for trigger %q", r.Trigger)
			}
			t.wildcard[r.Trigger] = r
			continue
		}

		if _, ok := g.State(r.From); !ok {
			return nil, fmt.Errorf("rule %q: source state %q is not declared", r.Trigger, r.From)
		}
		byTrigger := t.exact[r.From]
		if byTrigger == nil {
			byTrigger = make(map[string]api.StateTransitionRule)
			t.exact[r.From] = byTrigger
		}
		if _, dup := byTrigger[r.Trigger]; dup {
			return nil, fmt.Errorf("duplicate rule for (%s, %s)", r.From, r.Trigger)
		}
		byTrigger[r.Trigger] = r
	}

	return t, nil
}

// lookup returns the rule for (state, trigger), consulting exact rules
// before wildcard rules.
func (t *ruleTable) lookup(state, trigger string) (api.StateTransitionRule, bool) {
	if r, ok := t.exact[state][trigger]; ok {
		return r, true
	}
	r, ok := t.wildcard[trigger]
	return r, ok
}
