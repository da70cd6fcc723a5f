package statechart

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/harelstate/statechart/internal/action"
)

// buildContext threads the shared resolution state through the recursive
// node build, mirroring internal/primitives.MachineConfig.Validate's
// single-pass flatten-and-check.
type buildContext struct {
	maps     Maps
	byID     map[string]*StateNode
	afterSeq int
}

// build constructs the immutable StateNode tree for cfg.Root, resolving
// every action/guard reference against maps and compiling `after` delays
// and declared activities into synthetic entry/exit actions (spec §3, §4.B).
func build(cfg MachineConfig, maps Maps) (*StateNode, map[string]*StateNode, error) {
	if cfg.Root == nil {
		return nil, nil, fmt.Errorf("%w: machine %q has no root node", ErrInvalidMachineDefinition, cfg.ID)
	}
	bc := &buildContext{maps: maps, byID: make(map[string]*StateNode)}
	root, err := bc.buildNode(cfg.Root, "", nil)
	if err != nil {
		return nil, nil, err
	}
	if err := validateTree(root); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidMachineDefinition, err)
	}
	return root, bc.byID, nil
}

func (bc *buildContext) buildNode(cfg *NodeConfig, parentID string, parent *StateNode) (*StateNode, error) {
	id := cfg.Key
	if parentID != "" {
		id = parentID + "." + cfg.Key
	}
	if _, dup := bc.byID[id]; dup {
		return nil, fmt.Errorf("duplicate state id %q", id)
	}

	n := &StateNode{
		ID:             id,
		Key:            cfg.Key,
		Type:           cfg.Type,
		Initial:        cfg.Initial,
		States:         make(map[string]*StateNode),
		Parent:         parent,
		HistoryType:    cfg.HistoryType,
		HistoryDefault: cfg.HistoryDefault,
		Activities:     append([]string(nil), cfg.Activities...),
	}
	n.Path = append(append([]string(nil), parentPath(parent)...), cfg.Key)
	bc.byID[id] = n

	for _, childCfg := range cfg.Children {
		child, err := bc.buildNode(childCfg, id, n)
		if err != nil {
			return nil, err
		}
		n.States[child.Key] = child
		if child.Type != History {
			n.ChildOrder = append(n.ChildOrder, child.Key)
		}
	}

	entry, err := bc.resolveActions(id, cfg.Entry)
	if err != nil {
		return nil, err
	}
	exit, err := bc.resolveActions(id, cfg.Exit)
	if err != nil {
		return nil, err
	}

	// Compile declared activities into a start-on-entry / stop-on-exit pair,
	// appended after user entry actions and prepended before user exit
	// actions, so an activity starts only after the state's own entry
	// actions have run and is stopped before its exit actions run.
	for _, activityID := range cfg.Activities {
		entry = append(entry, action.Action{Kind: action.Start, ActivityID: id + "#" + activityID})
	}
	var stops []action.Action
	for i := len(cfg.Activities) - 1; i >= 0; i-- {
		stops = append(stops, action.Action{Kind: action.Stop, ActivityID: id + "#" + cfg.Activities[i]})
	}
	exit = append(stops, exit...)

	n.OnEntry = entry
	n.OnExit = exit

	if cfg.Invoke != nil {
		invID := cfg.Invoke.ID
		if invID == "" {
			// Authors may omit an explicit invoke id for a fire-and-forget
			// child; mint one so done.invoke events and child bookkeeping
			// still have a stable key.
			invID = uuid.NewString()
		}
		inv := &InvokeDescriptor{
			ID:          invID,
			Machine:     cfg.Invoke.Machine,
			Data:        cfg.Invoke.Data,
			AutoForward: cfg.Invoke.AutoForward,
		}
		if cfg.Invoke.OnDone != nil {
			t, err := bc.resolveTransition(id, "done.invoke."+invID, *cfg.Invoke.OnDone, 0)
			if err != nil {
				return nil, err
			}
			inv.OnDone = t
		}
		n.Invoke = inv
	}

	on := make(map[string][]*Transition, len(cfg.On))
	for evt, transCfgs := range cfg.On {
		list := make([]*Transition, 0, len(transCfgs))
		for i, tc := range transCfgs {
			t, err := bc.resolveTransition(id, evt, tc, i)
			if err != nil {
				return nil, err
			}
			list = append(list, t)
		}
		sort.SliceStable(list, func(i, j int) bool { return list[i].Priority > list[j].Priority })
		on[evt] = list
	}

	if n.Invoke != nil && n.Invoke.OnDone != nil {
		evtType := "done.invoke." + n.Invoke.ID
		on[evtType] = append(on[evtType], n.Invoke.OnDone)
	}

	// Compile `after` delays into synthetic send-on-entry/cancel-on-exit
	// actions plus a synthetic transition keyed on a unique internal event
	// type, per spec §3's "after: ... compiled into entry actions that
	// send and exit actions that cancel."
	for _, ac := range cfg.After {
		bc.afterSeq++
		evtType := fmt.Sprintf("%safter.%d.%s", internalPrefix, bc.afterSeq, id)
		t, err := bc.resolveTransition(id, evtType, ac.Transition, 0)
		if err != nil {
			return nil, err
		}
		on[evtType] = append(on[evtType], t)

		sendAction := action.Action{Kind: action.Send, EventType: evtType, ID: evtType}
		if ac.DelayFn != nil {
			sendAction.Delay = action.DelayFunc(ac.DelayFn)
		} else {
			d := ac.Delay
			sendAction.Delay = func(any, Event) time.Duration { return d }
		}
		n.OnEntry = append(n.OnEntry, sendAction)
		n.OnExit = append([]action.Action{{Kind: action.Cancel, ID: evtType}}, n.OnExit...)
	}

	for _, list := range on {
		for _, t := range list {
			t.Source = n
		}
	}
	n.On = on

	return n, nil
}

func parentPath(parent *StateNode) []string {
	if parent == nil {
		return nil
	}
	return parent.Path
}

func (bc *buildContext) resolveTransition(stateID, evtType string, tc TransitionConfig, idx int) (*Transition, error) {
	acts, err := bc.resolveActions(stateID, tc.Actions)
	if err != nil {
		return nil, err
	}
	guard, err := bc.resolveGuard(stateID, evtType, tc.Cond, idx)
	if err != nil {
		return nil, err
	}
	return &Transition{
		EventType: evtType,
		Targets:   tc.Targets,
		Cond:      guard,
		Actions:   acts,
		Internal:  tc.Internal,
		Priority:  tc.Priority,
	}, nil
}

func (bc *buildContext) resolveGuard(stateID, evtType string, ref GuardRef, idx int) (GuardFunc, error) {
	if ref == nil {
		return nil, nil
	}
	switch g := ref.(type) {
	case GuardFunc:
		return g, nil
	case func(ctx any, event Event) bool:
		return GuardFunc(g), nil
	case string:
		fn, ok := bc.maps.Guards[g]
		if !ok {
			return nil, fmt.Errorf("unknown guard %q on state %q event %q transition %d", g, stateID, evtType, idx)
		}
		return fn, nil
	default:
		return nil, fmt.Errorf("invalid guard reference type %T on state %q event %q", ref, stateID, evtType)
	}
}

func (bc *buildContext) resolveActions(stateID string, specs []ActionSpec) ([]action.Action, error) {
	out := make([]action.Action, 0, len(specs))
	for _, spec := range specs {
		a, err := bc.resolveAction(stateID, spec)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (bc *buildContext) resolveAction(stateID string, spec ActionSpec) (action.Action, error) {
	a := action.Action{Kind: spec.Kind, Name: spec.Name, Resolved: true}

	switch spec.Kind {
	case action.Assign:
		fn := spec.Assign
		if fn == nil {
			f, ok := bc.maps.Assigns[spec.Name]
			if !ok {
				return action.Unresolved(action.Assign, spec.Name), nil
			}
			fn = f
		}
		a.Exec = func(ctx any, event Event, _ action.Meta) (any, error) {
			return fn(ctx, event), nil
		}

	case action.Raise, action.Send:
		a.EventType = spec.EventType
		a.ID = spec.ID
		a.ToParent = spec.ToParent
		if spec.BuildEvent != nil {
			build := spec.BuildEvent
			a.Exec = func(ctx any, event Event, _ action.Meta) (any, error) {
				return build(ctx, event), nil
			}
		}
		if spec.Kind == action.Send {
			if spec.DelayFn != nil {
				a.Delay = action.DelayFunc(spec.DelayFn)
			} else if spec.Delay > 0 {
				d := spec.Delay
				a.Delay = func(any, Event) time.Duration { return d }
			}
		}

	case action.Cancel:
		a.ID = spec.ID

	case action.Start, action.Stop:
		a.ActivityID = spec.ActivityID

	case action.Log, action.Pure:
		fn := spec.Exec
		if fn == nil {
			f, ok := bc.maps.Actions[spec.Name]
			if !ok {
				return action.Unresolved(spec.Kind, spec.Name), nil
			}
			fn = f
		}
		a.Exec = fn

	default:
		return action.Action{}, fmt.Errorf("unknown action kind %q on state %q", spec.Kind, stateID)
	}

	return a, nil
}
