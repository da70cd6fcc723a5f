package statechart

import (
	"sort"

	"github.com/harelstate/statechart/internal/action"
	"github.com/harelstate/statechart/internal/statevalue"
)

// State is an immutable snapshot produced by Machine.Transition or
// Interpreter: the active configuration, context, the actions the step
// produced (assigns already applied and stripped), and bookkeeping the
// Interpreter needs to drive activities and history (spec §3, §4.D).
type State struct {
	Tree       *statevalue.Tree
	Context    any
	Event      Event
	Actions    []action.Action
	Activities map[string]bool
	Done       bool
	Changed    bool

	// InternalRaises holds done.state.<id> events this step's newly
	// entered final states produced (spec §4.D); the Interpreter queues
	// them onto its internal queue so a parent's done.state transition can
	// observe them on the next microstep.
	InternalRaises []Event

	historyValue map[string]*statevalue.Tree
}

// Value returns the public StateValue representation of the configuration.
func (s *State) Value() *statevalue.Value {
	return statevalue.ToValue(s.Tree)
}

// Matches reports whether stateID is active in this configuration, at any
// depth (an ancestor compound/parallel id counts as a match).
func (s *State) Matches(stateID string) bool {
	var walk func(t *statevalue.Tree) bool
	walk = func(t *statevalue.Tree) bool {
		if t == nil {
			return false
		}
		if t.ID == stateID {
			return true
		}
		for _, c := range t.Children {
			if walk(c) {
				return true
			}
		}
		return false
	}
	return walk(s.Tree)
}

// Leaves returns the ids of every active atomic/final leaf, sorted.
func (s *State) Leaves() []string {
	return statevalue.Leaves(s.Tree)
}

// ActiveIDs returns every active state id (leaves and their ancestors),
// sorted.
func (s *State) ActiveIDs() []string {
	var out []string
	var walk func(t *statevalue.Tree)
	walk = func(t *statevalue.Tree) {
		if t == nil {
			return
		}
		out = append(out, t.ID)
		for _, c := range t.Children {
			walk(c)
		}
	}
	walk(s.Tree)
	sort.Strings(out)
	return out
}
