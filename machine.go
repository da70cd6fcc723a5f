package statechart

import (
	"fmt"
	"strings"

	"github.com/harelstate/statechart/internal/action"
	"github.com/harelstate/statechart/internal/statevalue"
)

// Machine is the compiled, immutable definition of a statechart: a
// StateNode tree plus the resolved action/guard tables it was built with.
// Machine.Transition is the pure function at the heart of the package
// (spec §4.C); everything that mutates or schedules belongs to Interpreter.
type Machine struct {
	ID   string
	root *StateNode
	byID map[string]*StateNode
	maps Maps
}

// NewMachine builds and validates a Machine from cfg, resolving every
// string-named action/guard against maps.
func NewMachine(cfg MachineConfig, maps Maps) (*Machine, error) {
	root, byID, err := build(cfg, maps)
	if err != nil {
		return nil, err
	}
	return &Machine{ID: cfg.ID, root: root, byID: byID, maps: maps}, nil
}

// Root returns the machine's root state node.
func (m *Machine) Root() *StateNode { return m.root }

// Node looks up a state by its full dotted id.
func (m *Machine) Node(id string) (*StateNode, bool) {
	n, ok := m.byID[id]
	return n, ok
}

// InitialState computes the machine's starting configuration: the default
// entry path from the root down through every Initial child (and every
// region of every Parallel ancestor), with xstate.init as the triggering
// event (spec §4.D "on start").
func (m *Machine) InitialState() *State {
	hv := map[string]*statevalue.Tree{}
	tree := m.enterDefault(m.root, hv)
	var entryNodes []*StateNode
	appendEntryPreorder(m.root, tree, &entryNodes)

	var ctx any = Context{}
	actions, ctx := m.collectEntryActions(entryNodes, ctx, InitEvent)

	return &State{
		Tree:           tree,
		Context:        ctx,
		Event:          InitEvent,
		Actions:        actions,
		Activities:     activitiesOf(entryNodes),
		historyValue:   hv,
		Done:           m.isDone(tree),
		Changed:        true,
		InternalRaises: m.doneStateRaises(entryNodes, tree),
	}
}

// Transition is the pure transition function: given the current State and
// an incoming event, it returns the next State without performing any
// side effects. The Interpreter is responsible for running the returned
// Actions and for driving transient/eventless follow-up steps.
func (m *Machine) Transition(current *State, event Event) (*State, error) {
	if current == nil {
		return m.InitialState(), nil
	}
	evt := ToEvent(event)

	selected, err := m.selectTransitions(current.Tree, evt, current.Context)
	if err != nil {
		return nil, err
	}
	if len(selected) == 0 {
		return &State{
			Tree:         current.Tree,
			Context:      current.Context,
			Event:        evt,
			Actions:      nil,
			Activities:   current.Activities,
			historyValue: current.historyValue,
			Done:         current.Done,
			Changed:      false,
		}, nil
	}

	tree := current.Tree
	hv := cloneHV(current.historyValue)
	ctx := current.Context
	var ordered []action.Action
	var allEntryNodes []*StateNode

	for _, t := range selected {
		var exitActs, bodyActs, entryActs []action.Action
		var entryNodes []*StateNode
		tree, exitActs, bodyActs, entryActs, entryNodes, err = m.applyTransition(t, tree, hv, ctx, evt)
		if err != nil {
			return nil, err
		}
		ordered = append(ordered, exitActs...)
		ordered = append(ordered, bodyActs...)
		ordered = append(ordered, entryActs...)
		allEntryNodes = append(allEntryNodes, entryNodes...)
	}

	// Raise phase: assign actions run first and mutate context; spec
	// invariant 3. They are removed from the action list surfaced to
	// the interpreter since they carry no further side effect.
	finalCtx := ctx
	var surfaced []action.Action
	for _, a := range ordered {
		if a.Kind == action.Assign {
			next, err := a.Run(finalCtx, evt)
			if err != nil {
				return nil, &ActionExecutionError{StateID: m.root.ID, ActionName: a.Name, Event: evt, cause: err}
			}
			finalCtx = next
			continue
		}
		surfaced = append(surfaced, a)
	}

	activeNodes := activeStateNodes(m.root, tree)
	activities := activitiesOf(activeNodes)

	return &State{
		Tree:           tree,
		Context:        finalCtx,
		Event:          evt,
		Actions:        surfaced,
		Activities:     activities,
		historyValue:   hv,
		Done:           m.isDone(tree),
		Changed:        true,
		InternalRaises: m.doneStateRaises(allEntryNodes, tree),
	}, nil
}

// isDone reports whether the machine as a whole has reached a final
// configuration: the root itself is Final, one of its direct children is
// an active Final state (Compound root), or every region of a Parallel
// root has itself reached a final configuration (spec §4.D).
func (m *Machine) isDone(tree *statevalue.Tree) bool {
	if m.root.Type == Final {
		return true
	}
	return m.isRegionFinal(m.root, tree)
}

// isRegionFinal reports whether n (Compound, Parallel, or Final) has
// reached a final configuration under the active tree t: a Final node
// always has; a Compound node has iff its active child is Final; a
// Parallel node has iff every one of its regions has (recursively).
func (m *Machine) isRegionFinal(n *StateNode, t *statevalue.Tree) bool {
	if t == nil {
		return false
	}
	switch n.Type {
	case Final:
		return true
	case Parallel:
		for _, key := range n.ChildOrder {
			child, ok := n.States[key]
			if !ok {
				continue
			}
			ct, active := t.Children[key]
			if !active || !m.isRegionFinal(child, ct) {
				return false
			}
		}
		return true
	case Compound:
		for key := range t.Children {
			if child, ok := n.States[key]; ok && child.Type == Final {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// doneStateRaises computes the done.state.<id> events a macrostep's newly
// entered states raise onto the interpreter's internal queue (spec §4.D):
// entering a Final child raises done.state for its Compound parent, and
// that parent's own completion bubbles up through any chain of enclosing
// Parallel ancestors that have, as a result, also become fully done.
func (m *Machine) doneStateRaises(entryNodes []*StateNode, tree *statevalue.Tree) []Event {
	var out []Event
	raised := map[string]bool{}
	for _, n := range entryNodes {
		if n.Type != Final {
			continue
		}
		cur := n.Parent
		for cur != nil && !raised[cur.ID] {
			out = append(out, doneStateEvent(cur.ID))
			raised[cur.ID] = true

			next := cur.Parent
			if next == nil || next.Type != Parallel {
				break
			}
			if !m.isRegionFinal(next, subtreeAtPath(tree, relPath(next))) {
				break
			}
			cur = next
		}
	}
	return out
}

func activitiesOf(nodes []*StateNode) map[string]bool {
	out := map[string]bool{}
	for _, n := range nodes {
		for _, a := range n.Activities {
			out[n.ID+"#"+a] = true
		}
	}
	return out
}

func cloneHV(hv map[string]*statevalue.Tree) map[string]*statevalue.Tree {
	out := make(map[string]*statevalue.Tree, len(hv))
	for k, v := range hv {
		out[k] = v
	}
	return out
}

// ---- transition selection -------------------------------------------------

// selectTransitions walks every active leaf, innermost-first, up to the
// first ancestor declaring a handler for evt.Type, and evaluates that
// handler's candidates in priority/declaration order. The first satisfied
// guard wins for that leaf's region; a transition already selected for a
// sibling leaf under the same ancestor is not evaluated twice.
func (m *Machine) selectTransitions(tree *statevalue.Tree, evt Event, ctx any) ([]*Transition, error) {
	leaves := m.activeLeavesInOrder(m.root, tree)
	seen := map[*Transition]bool{}
	var selected []*Transition
	var guardErr error

	for _, leaf := range leaves {
		for node := leaf; node != nil; node = node.Parent {
			list, ok := node.On[evt.Type]
			if !ok {
				continue
			}
			for _, t := range list {
				if seen[t] {
					break
				}
				ok := t.Cond == nil
				if !ok {
					func() {
						defer func() {
							if r := recover(); r != nil {
								guardErr = &GuardEvaluationError{StateID: node.ID, Event: evt, cause: recoverAsError(r)}
							}
						}()
						ok = t.Cond(ctx, evt)
					}()
				}
				if guardErr != nil {
					return nil, guardErr
				}
				if ok {
					selected = append(selected, t)
					seen[t] = true
					break
				}
			}
			break
		}
	}
	return selected, nil
}

// activeLeavesInOrder returns the currently active atomic/final/history
// leaves under n, in declaration order.
func (m *Machine) activeLeavesInOrder(n *StateNode, t *statevalue.Tree) []*StateNode {
	if t == nil {
		return nil
	}
	if len(t.Children) == 0 {
		return []*StateNode{n}
	}
	var out []*StateNode
	for _, key := range n.ChildOrder {
		child, ok := n.States[key]
		if !ok {
			continue
		}
		ct, ok := t.Children[key]
		if !ok {
			continue
		}
		out = append(out, m.activeLeavesInOrder(child, ct)...)
	}
	return out
}

// activeStateNodes returns every active node (not just leaves) under n, in
// declaration order, used for Activities/Matches bookkeeping.
func activeStateNodes(n *StateNode, t *statevalue.Tree) []*StateNode {
	if t == nil {
		return nil
	}
	out := []*StateNode{n}
	for _, key := range n.ChildOrder {
		child, ok := n.States[key]
		if !ok {
			continue
		}
		ct, ok := t.Children[key]
		if !ok {
			continue
		}
		out = append(out, activeStateNodes(child, ct)...)
	}
	return out
}

// ---- target resolution -----------------------------------------------------

func resolveTargetSpec(index map[string]*StateNode, source *StateNode, spec string) (*StateNode, error) {
	var id string
	switch {
	case strings.HasPrefix(spec, "#"):
		id = strings.TrimPrefix(spec, "#")
	case strings.HasPrefix(spec, "."):
		id = source.ID + spec
	default:
		if source.Parent != nil {
			id = source.Parent.ID + "." + spec
		} else {
			id = spec
		}
	}
	n, ok := index[id]
	if !ok {
		return nil, fmt.Errorf("%w: unresolved transition target %q (resolved to %q) from state %q",
			ErrInvalidMachineDefinition, spec, id, source.ID)
	}
	return n, nil
}

func (m *Machine) resolveTargets(source *StateNode, specs []string) ([]*StateNode, error) {
	out := make([]*StateNode, 0, len(specs))
	for _, spec := range specs {
		n, err := resolveTargetSpec(m.byID, source, spec)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// ---- ancestor / domain computation -----------------------------------------

func ancestorChain(n *StateNode) []*StateNode {
	var chain []*StateNode
	for cur := n; cur != nil; cur = cur.Parent {
		chain = append(chain, cur)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

func lcca(nodes ...*StateNode) *StateNode {
	if len(nodes) == 0 {
		return nil
	}
	chains := make([][]*StateNode, len(nodes))
	for i, n := range nodes {
		chains[i] = ancestorChain(n)
	}
	var common *StateNode
	for i := 0; ; i++ {
		var candidate *StateNode
		for ci, c := range chains {
			if i >= len(c) {
				return common
			}
			if ci == 0 {
				candidate = c[i]
			} else if candidate != c[i] {
				return common
			}
		}
		common = candidate
	}
}

// ---- applying a single transition ------------------------------------------

// applyTransition computes the exit/entry node lists and produces the next
// tree for one selected transition, folding it onto tree. Multiple selected
// transitions (one per orthogonal region) are applied sequentially by the
// caller, each against the result of the previous.
func (m *Machine) applyTransition(t *Transition, tree *statevalue.Tree, hv map[string]*statevalue.Tree, ctx any, evt Event) (*statevalue.Tree, []action.Action, []action.Action, []action.Action, []*StateNode, error) {
	if len(t.Targets) == 0 {
		// Targetless/internal transition: no exit, no entry, just actions.
		return tree, nil, resolveActionEffects(t.Actions), nil, nil, nil
	}

	targets, err := m.resolveTargets(t.Source, t.Targets)
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}

	selfTransition := len(targets) == 1 && targets[0] == t.Source && !t.Internal

	var domain *StateNode
	if t.Internal {
		domain = t.Source
	} else {
		lccaNodes := append([]*StateNode{t.Source}, targets...)
		domain = lcca(lccaNodes...)
	}

	domainSub := subtreeAtPath(tree, relPath(domain))

	var exitNodes []*StateNode
	exitNodes = append(exitNodes, m.collectActiveDescendants(domain, domainSub)...)
	if selfTransition {
		exitNodes = append(exitNodes, domain)
	}
	captureHistory(exitNodes, tree, hv)

	var entryTree *statevalue.Tree
	var entryNodes []*StateNode
	if selfTransition {
		entryTree = m.enterDefault(domain, hv)
		appendEntryPreorder(domain, entryTree, &entryNodes)
	} else {
		entryTree, entryNodes = m.buildEntryTree(domain, targets, hv)
	}

	newTree := replaceAt(tree, relPath(domain), entryTree)

	// collectActiveDescendants already yields child-before-parent (deepest
	// exits first), so no further reordering is needed here.
	exitActs := actionsOf(exitNodes, func(n *StateNode) []action.Action { return n.OnExit }, identityNodes)
	entryActs := actionsOf(entryNodes, func(n *StateNode) []action.Action { return n.OnEntry }, identityNodes)
	bodyActs := resolveActionEffects(t.Actions)

	return newTree, exitActs, bodyActs, entryActs, entryNodes, nil
}

func resolveActionEffects(acts []action.Action) []action.Action {
	return acts
}

func identityNodes(in []*StateNode) []*StateNode { return in }

func actionsOf(nodes []*StateNode, pick func(*StateNode) []action.Action, order func([]*StateNode) []*StateNode) []action.Action {
	var out []action.Action
	for _, n := range order(nodes) {
		out = append(out, pick(n)...)
	}
	return out
}

func relPath(n *StateNode) []string {
	if len(n.Path) == 0 {
		return nil
	}
	return n.Path[1:]
}

func subtreeAtPath(tree *statevalue.Tree, path []string) *statevalue.Tree {
	cur := tree
	for _, key := range path {
		if cur == nil {
			return nil
		}
		cur = cur.Children[key]
	}
	return cur
}

func replaceAt(tree *statevalue.Tree, path []string, replacement *statevalue.Tree) *statevalue.Tree {
	if len(path) == 0 {
		return replacement
	}
	key := path[0]
	newChildren := make(map[string]*statevalue.Tree, len(tree.Children))
	for k, v := range tree.Children {
		newChildren[k] = v
	}
	if len(path) == 1 {
		newChildren[key] = replacement
	} else {
		newChildren[key] = replaceAt(tree.Children[key], path[1:], replacement)
	}
	return &statevalue.Tree{ID: tree.ID, Children: newChildren}
}

// collectActiveDescendants returns the active descendants of n (n itself
// excluded), post-order: a child's own descendants first, then the child,
// regions visited in declaration order (spec invariant 2).
func (m *Machine) collectActiveDescendants(n *StateNode, t *statevalue.Tree) []*StateNode {
	if t == nil {
		return nil
	}
	var out []*StateNode
	for _, key := range n.ChildOrder {
		child, ok := n.States[key]
		if !ok {
			continue
		}
		ct, ok := t.Children[key]
		if !ok {
			continue
		}
		out = append(out, m.collectActiveDescendants(child, ct)...)
		out = append(out, child)
	}
	return out
}

// captureHistory snapshots, for every node about to exit that owns a
// History child, the subtree currently active under it, keyed by the
// history node's id, so a later transition targeting that history
// pseudostate can replay it (spec §3 History semantics).
func captureHistory(exitNodes []*StateNode, tree *statevalue.Tree, hv map[string]*statevalue.Tree) {
	for _, n := range exitNodes {
		for _, key := range allChildKeysIncludingHistory(n) {
			child := n.States[key]
			if child.Type != History {
				continue
			}
			sub := subtreeAtPath(tree, relPath(n))
			if sub == nil {
				continue
			}
			hv[child.ID] = sub
		}
	}
}

func allChildKeysIncludingHistory(n *StateNode) []string {
	out := make([]string, 0, len(n.States))
	for k := range n.States {
		out = append(out, k)
	}
	return out
}

// ---- default-entry / history expansion -------------------------------------

// enterDefault computes the Tree for fully entering n via its default
// configuration: Initial for Compound, every region for Parallel, and the
// remembered (or default) child for History.
func (m *Machine) enterDefault(n *StateNode, hv map[string]*statevalue.Tree) *statevalue.Tree {
	switch n.Type {
	case Compound:
		initial, ok := n.States[n.Initial]
		if !ok {
			return &statevalue.Tree{ID: n.ID}
		}
		children := map[string]*statevalue.Tree{}
		if initial.Type == History {
			key, sub := m.resolveHistory(initial, hv)
			children[key] = sub
		} else {
			children[initial.Key] = m.enterDefault(initial, hv)
		}
		return &statevalue.Tree{ID: n.ID, Children: children}
	case Parallel:
		children := map[string]*statevalue.Tree{}
		for _, key := range n.ChildOrder {
			children[key] = m.enterDefault(n.States[key], hv)
		}
		return &statevalue.Tree{ID: n.ID, Children: children}
	default:
		return &statevalue.Tree{ID: n.ID}
	}
}

// resolveHistory resolves what a history pseudostate enters: its owning
// region's remembered child (shallow: re-expanded via default; deep: the
// full remembered subtree) or, absent a recording, the region's declared
// default / initial child.
func (m *Machine) resolveHistory(n *StateNode, hv map[string]*statevalue.Tree) (string, *statevalue.Tree) {
	region := n.Parent
	if captured, ok := hv[n.ID]; ok && captured != nil {
		for key, sub := range captured.Children {
			if n.HistoryType == HistoryDeep {
				return key, sub
			}
			if child, ok := region.States[key]; ok {
				return key, m.enterDefault(child, hv)
			}
		}
	}
	defaultKey := n.HistoryDefault
	if defaultKey == "" {
		defaultKey = region.Initial
	}
	child := region.States[defaultKey]
	return defaultKey, m.enterDefault(child, hv)
}

// buildEntryTree computes the Tree to graft at domain, and the ordered
// (root-to-leaf, declaration order) list of newly-entered StateNodes, for
// all of a transition's resolved targets.
func (m *Machine) buildEntryTree(domain *StateNode, targets []*StateNode, hv map[string]*statevalue.Tree) (*statevalue.Tree, []*StateNode) {
	root := &statevalue.Tree{ID: domain.ID}
	var entryNodes []*StateNode
	seen := map[string]bool{}
	addEntry := func(n *StateNode) {
		if !seen[n.ID] {
			seen[n.ID] = true
			entryNodes = append(entryNodes, n)
		}
	}

	for _, target := range targets {
		chain := ancestorChain(target)
		var rel []*StateNode
		started := false
		for _, n := range chain {
			if n == domain {
				started = true
				continue
			}
			if started {
				rel = append(rel, n)
			}
		}
		if !started {
			rel = chain
		}
		for _, n := range rel {
			addEntry(n)
		}

		graftPath := rel
		var leafTree *statevalue.Tree
		if target.Type == History {
			key, sub := m.resolveHistory(target, hv)
			leafTree = &statevalue.Tree{ID: target.Parent.ID, Children: map[string]*statevalue.Tree{key: sub}}
			if child, ok := target.Parent.States[key]; ok {
				appendEntryPreorder(child, sub, &entryNodes)
			}
			// A history pseudostate's resolved subtree is already rooted at
			// its owning region, so it grafts one hop up from the history
			// node itself.
			graftPath = rel[:len(rel)-1]
		} else {
			leafTree = m.enterDefault(target, hv)
		}

		cur := root
		for i, n := range graftPath {
			if cur.Children == nil {
				cur.Children = map[string]*statevalue.Tree{}
			}
			if i == len(graftPath)-1 {
				cur.Children[n.Key] = leafTree
			} else {
				next, ok := cur.Children[n.Key]
				if !ok {
					next = &statevalue.Tree{ID: n.ID}
					cur.Children[n.Key] = next
				}
				cur = next
			}
		}
	}

	m.fillParallelSiblings(domain, root, hv, &entryNodes)
	return root, entryNodes
}

// fillParallelSiblings ensures every region of a Parallel ancestor touched
// by entry is fully populated: entering one region always activates every
// sibling region via its own default configuration.
func (m *Machine) fillParallelSiblings(n *StateNode, t *statevalue.Tree, hv map[string]*statevalue.Tree, entryNodes *[]*StateNode) {
	if t == nil {
		return
	}
	if n.Type == Parallel {
		if t.Children == nil {
			t.Children = map[string]*statevalue.Tree{}
		}
		for _, key := range n.ChildOrder {
			if _, ok := t.Children[key]; !ok {
				child := n.States[key]
				sub := m.enterDefault(child, hv)
				t.Children[key] = sub
				appendEntryPreorder(child, sub, entryNodes)
			}
		}
	}
	for key, childTree := range t.Children {
		childNode, ok := n.States[key]
		if !ok {
			continue
		}
		m.fillParallelSiblings(childNode, childTree, hv, entryNodes)
	}
}

func appendEntryPreorder(n *StateNode, t *statevalue.Tree, entryNodes *[]*StateNode) {
	*entryNodes = append(*entryNodes, n)
	if t == nil {
		return
	}
	for _, key := range n.ChildOrder {
		ct, ok := t.Children[key]
		if !ok {
			continue
		}
		if child, ok := n.States[key]; ok {
			appendEntryPreorder(child, ct, entryNodes)
		}
	}
}

// collectEntryActions resolves the initial entry action list and applies
// any assign actions immediately, mirroring Transition's raise-phase
// handling, for InitialState's synthetic first step.
func (m *Machine) collectEntryActions(nodes []*StateNode, ctx any, evt Event) ([]action.Action, any) {
	var raw []action.Action
	for _, n := range nodes {
		raw = append(raw, n.OnEntry...)
	}
	cur := ctx
	var surfaced []action.Action
	for _, a := range raw {
		if a.Kind == action.Assign {
			next, err := a.Run(cur, evt)
			if err == nil {
				cur = next
			}
			continue
		}
		surfaced = append(surfaced, a)
	}
	return surfaced, cur
}
