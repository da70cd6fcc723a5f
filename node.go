package statechart

import (
	"time"

	"github.com/harelstate/statechart/internal/action"
	"github.com/harelstate/statechart/internal/statevalue"
)

// NodeType is re-exported from internal/statevalue so the root package's
// StateNode and the resolver it feeds share one vocabulary.
type NodeType = statevalue.NodeType

const (
	Atomic   = statevalue.Atomic
	Compound = statevalue.Compound
	Parallel = statevalue.Parallel
	Final    = statevalue.Final
	History  = statevalue.History
)

// HistoryKind distinguishes shallow history (remembers the direct active
// child) from deep history (remembers the full active leaf configuration).
type HistoryKind int

const (
	HistoryShallow HistoryKind = iota
	HistoryDeep
)

// GuardFunc is a resolved guard predicate over (context, event).
type GuardFunc func(ctx any, event Event) bool

// InvokeDescriptor configures a child machine spawned on entry to the
// owning state (spec §4.E).
type InvokeDescriptor struct {
	ID          string
	Machine     *Machine
	Data        func(parentCtx any, event Event) any // seeds the child's context
	AutoForward bool
	OnDone      *Transition // fired against the parent when the child finishes
}

// Transition is an immutable outgoing edge, owned by the StateNode whose On
// map references it (spec §3).
type Transition struct {
	EventType string
	// Targets holds the raw target specifiers as written (relative sibling
	// key, ".child" descendant, or "#machineId.path" absolute); empty means
	// an internal/targetless transition. Resolved against the source node
	// at selection time, not at construction, since relative targets are
	// only meaningful relative to whichever branch's ancestor enabled them.
	Targets  []string
	Cond     GuardFunc
	Actions  []action.Action
	Internal bool
	Priority int

	// Source is set by build once the owning node exists, so the transition
	// algorithm can compute ancestor chains and domains without a reverse
	// lookup table.
	Source *StateNode
}

// StateNode is an immutable node in the machine's state-node tree, built
// once by NewMachine and never mutated afterwards (spec §3 Lifecycle).
type StateNode struct {
	ID   string // globally unique full dotted path from the root
	Key  string // local name among siblings
	Path []string

	Type    NodeType
	Initial string // initial child key, Compound only

	States     map[string]*StateNode // child key -> node
	ChildOrder []string              // declaration order of States' keys; spec invariant 2 requires document order for parallel region exit/entry

	On      map[string][]*Transition
	OnEntry []action.Action
	OnExit  []action.Action

	Activities []string

	Invoke *InvokeDescriptor

	HistoryType    HistoryKind // History nodes only
	HistoryDefault string      // child key fallback, History nodes only

	Parent *StateNode // back-reference; never used to form a retain cycle in child ownership
}

// afterEntry describes one `after` delay. build compiles each delay
// straight into a synthetic send/cancel action pair and a transition on the
// owning node; StateNode holds no afterEntry values.
type afterEntry struct {
	delay     time.Duration
	delayFn   func(ctx any, event Event) time.Duration
	eventType string
}

// childKeys returns the node's child keys in declaration order.
func (n *StateNode) childKeys() []string {
	return n.ChildOrder
}
