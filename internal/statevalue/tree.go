package statevalue

import (
	"fmt"
	"sort"
	"strings"
)

// NodeType mirrors the machine's state-node kinds, duplicated here so this
// package has no dependency on the root statechart package.
type NodeType int

const (
	Atomic NodeType = iota
	Compound
	Parallel
	Final
	History
)

// NodeInfo is the minimal shape statevalue needs to know about a state node
// in order to resolve and combine trees. A Resolver supplies one NodeInfo
// per state id.
type NodeInfo struct {
	ID        string
	Type      NodeType
	Initial   string   // initial child key, Compound only
	ChildKeys []string // ordered child keys, Compound/Parallel only

	// History-node fields (Type == History only).
	HistoryParent  string // id of the compound/parallel node this history remembers
	HistoryDeep    bool
	HistoryDefault string // child key to use when nothing was recorded yet
}

// Resolver exposes the shape of a machine's state-node tree to this package.
type Resolver interface {
	RootID() string
	Node(id string) (NodeInfo, bool)
	// History returns the recorded child key for the given compound/parallel
	// node id, if the Resolver has one recorded.
	History(nodeID string) (childKey string, ok bool)
}

// Tree is the canonical active-configuration representation: for every
// active node, the set of active child trees (empty for atomic/final,
// exactly one entry for compound, one entry per region for parallel).
type Tree struct {
	ID       string
	Children map[string]*Tree
}

func joinID(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}

// InvalidStateValueError reports a StateValue referencing an unknown node.
type InvalidStateValueError struct {
	Key string
}

func (e *InvalidStateValueError) Error() string {
	return fmt.Sprintf("invalid state value: unknown state %q", e.Key)
}

// Resolve fills in defaults (from each compound node's Initial, and every
// region for parallel nodes) to turn a partial StateValue into a complete
// StateTree rooted at the machine's root id.
func Resolve(r Resolver, v *Value) (*Tree, error) {
	return resolveNode(r, r.RootID(), v)
}

func resolveNode(r Resolver, id string, v *Value) (*Tree, error) {
	info, ok := r.Node(id)
	if !ok {
		return nil, &InvalidStateValueError{Key: id}
	}

	switch info.Type {
	case Atomic, Final:
		return &Tree{ID: id}, nil

	case History:
		childKey, found := r.History(info.HistoryParent)
		if !found {
			childKey = info.HistoryDefault
		}
		return resolveNode(r, joinID(info.HistoryParent, childKey), v)

	case Compound:
		key := info.Initial
		var childVal *Value
		if v != nil && !v.IsLeaf() {
			if cv, ok := v.Children[info.ID]; ok && cv != nil {
				// Nested value addressed by this node's own id (common when
				// callers build a partial value keyed by full path).
				childVal = cv
			}
			for k, cv := range v.Children {
				if _, isChild := childKeySet(info.ChildKeys)[k]; isChild {
					key = k
					childVal = cv
				}
			}
		}
		childID := joinID(id, key)
		child, err := resolveNode(r, childID, childVal)
		if err != nil {
			return nil, err
		}
		return &Tree{ID: id, Children: map[string]*Tree{key: child}}, nil

	case Parallel:
		children := make(map[string]*Tree, len(info.ChildKeys))
		for _, key := range info.ChildKeys {
			var childVal *Value
			if v != nil && !v.IsLeaf() {
				childVal = v.Children[key]
			}
			childID := joinID(id, key)
			child, err := resolveNode(r, childID, childVal)
			if err != nil {
				return nil, err
			}
			children[key] = child
		}
		return &Tree{ID: id, Children: children}, nil
	}

	return nil, &InvalidStateValueError{Key: id}
}

func childKeySet(keys []string) map[string]struct{} {
	m := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return m
}

// Combine merges two trees from the same machine, preferring b wherever
// both specify a node. Children named by both trees are merged
// recursively, and children only a names are kept alongside them; when b
// names only children that a does not (a compound node whose active child
// changed), b's children replace a's. Used to splice a transition's result
// back into sibling parallel regions that the transition itself did not
// touch.
func Combine(a, b *Tree) *Tree {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	out := &Tree{ID: a.ID}
	if len(a.Children) == 0 && len(b.Children) == 0 {
		return out
	}
	shared := false
	for k := range b.Children {
		if _, ok := a.Children[k]; ok {
			shared = true
			break
		}
	}
	if len(b.Children) > 0 && !shared {
		return b
	}
	out.Children = make(map[string]*Tree, len(a.Children)+len(b.Children))
	for k, v := range a.Children {
		out.Children[k] = v
	}
	for k, v := range b.Children {
		if av, ok := a.Children[k]; ok {
			out.Children[k] = Combine(av, v)
		} else {
			out.Children[k] = v
		}
	}
	return out
}

// Matches reports whether the state id parentID is active in child: some
// node of child has that id, or has an id below it. This matches
// machine.State.Matches semantics: parentID describes a target state
// id/path, and Matches asks whether that id is currently active somewhere
// in child.
func Matches(parentID string, child *Tree) bool {
	if child == nil {
		return false
	}
	if child.ID == parentID || strings.HasPrefix(child.ID, parentID+".") {
		return true
	}
	for _, c := range child.Children {
		if Matches(parentID, c) {
			return true
		}
	}
	return false
}

// ToStrings enumerates every path from the root to every active leaf,
// joined with delim, sorted for determinism.
func ToStrings(t *Tree, delim string) []string {
	if t == nil {
		return nil
	}
	if len(t.Children) == 0 {
		return []string{strings.ReplaceAll(t.ID, ".", delim)}
	}
	var out []string
	keys := make([]string, 0, len(t.Children))
	for k := range t.Children {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, ToStrings(t.Children[k], delim)...)
	}
	return out
}

// Equals reports structural equality between two StateTrees.
func Equals(a, b *Tree) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.ID != b.ID {
		return false
	}
	if len(a.Children) != len(b.Children) {
		return false
	}
	for k, av := range a.Children {
		bv, ok := b.Children[k]
		if !ok || !Equals(av, bv) {
			return false
		}
	}
	return true
}

// Leaves returns every atomic/final node id currently active, in
// deterministic (sorted) order.
func Leaves(t *Tree) []string {
	if t == nil {
		return nil
	}
	if len(t.Children) == 0 {
		return []string{t.ID}
	}
	var out []string
	keys := make([]string, 0, len(t.Children))
	for k := range t.Children {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, Leaves(t.Children[k])...)
	}
	return out
}

// Ancestors returns every node id from the root down to (and including) id,
// computed purely from the id's dotted path.
func Ancestors(id string) []string {
	segs := strings.Split(id, ".")
	out := make([]string, len(segs))
	cur := ""
	for i, s := range segs {
		cur = joinID(cur, s)
		out[i] = cur
	}
	return out
}

// ToValue converts a Tree back into a public StateValue, collapsing
// single-child compound nodes into their child's value keyed by the child
// key (matching the shape callers passed into Resolve).
func ToValue(t *Tree) *Value {
	if t == nil {
		return nil
	}
	if len(t.Children) == 0 {
		leaf := t.ID
		if idx := strings.LastIndex(leaf, "."); idx >= 0 {
			leaf = leaf[idx+1:]
		}
		return &Value{Leaf: leaf}
	}
	children := make(map[string]*Value, len(t.Children))
	for k, c := range t.Children {
		children[k] = ToValue(c)
	}
	return &Value{Children: children}
}
