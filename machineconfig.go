package statechart

import (
	"time"

	"github.com/harelstate/statechart/internal/action"
)

// Maps are the pluggable action/guard implementation tables supplied at
// machine construction (spec §6). String-named ActionSpec/TransitionConfig
// references are resolved against these once, at NewMachine time.
type Maps struct {
	Actions map[string]func(ctx any, event Event, meta action.Meta) (any, error)
	Assigns map[string]func(ctx any, event Event) any
	Guards  map[string]GuardFunc
}

// TransitionConfig is the author-facing, pre-resolution shape of one
// transition definition (spec §3).
type TransitionConfig struct {
	Targets  []string
	Cond     GuardRef
	Actions  []ActionSpec
	Internal bool
	Priority int
}

// AfterConfig declares a delayed transition compiled into a synthetic
// send-on-entry / cancel-on-exit pair (spec §3's `after`).
type AfterConfig struct {
	Delay      time.Duration
	DelayFn    func(ctx any, event Event) time.Duration
	Transition TransitionConfig
}

// InvokeConfig configures a child machine spawned on entry (spec §4.E).
type InvokeConfig struct {
	ID          string
	Machine     *Machine
	Data        func(parentCtx any, event Event) any
	AutoForward bool
	OnDone      *TransitionConfig
}

// NodeConfig is the author-facing, pre-resolution shape of one state node.
// A validated tree of these (rooted at MachineConfig.Root) is what
// NewMachine accepts — the DSL/JSON-schema layer that would produce this
// tree from source text is an external collaborator, out of scope per §1.
type NodeConfig struct {
	Key      string
	Type     NodeType
	Initial  string
	Children []*NodeConfig

	On      map[string][]TransitionConfig
	Entry   []ActionSpec
	Exit    []ActionSpec

	Activities []string
	After      []AfterConfig
	Invoke     *InvokeConfig

	HistoryType    HistoryKind
	HistoryDefault string
}

// MachineConfig is the top-level, validated in-memory machine description
// NewMachine accepts.
type MachineConfig struct {
	ID   string
	Root *NodeConfig
}
