package statevalue

import "testing"

// fakeResolver is a minimal in-memory Resolver for exercising Resolve
// against a small compound/parallel/history tree.
type fakeResolver struct {
	root  string
	nodes map[string]NodeInfo
	hist  map[string]string
}

func (r *fakeResolver) RootID() string { return r.root }
func (r *fakeResolver) Node(id string) (NodeInfo, bool) {
	n, ok := r.nodes[id]
	return n, ok
}
func (r *fakeResolver) History(nodeID string) (string, bool) {
	k, ok := r.hist[nodeID]
	return k, ok
}

func newFixture() *fakeResolver {
	return &fakeResolver{
		root: "machine",
		nodes: map[string]NodeInfo{
			"machine":         {ID: "machine", Type: Compound, Initial: "on", ChildKeys: []string{"on", "off"}},
			"machine.on":      {ID: "machine.on", Type: Compound, Initial: "idle", ChildKeys: []string{"idle", "busy"}},
			"machine.on.idle": {ID: "machine.on.idle", Type: Atomic},
			"machine.on.busy": {ID: "machine.on.busy", Type: Atomic},
			"machine.off":     {ID: "machine.off", Type: Atomic},
		},
		hist: map[string]string{},
	}
}

func TestResolveDefaultConfiguration(t *testing.T) {
	r := newFixture()
	tree, err := Resolve(r, nil)
	if err != nil {
		t.Fatal(err)
	}
	got := ToStrings(tree, "/")
	if len(got) != 1 || got[0] != "machine/on/idle" {
		t.Errorf("got %v, want [machine/on/idle]", got)
	}
}

func TestResolveUnknownKeyErrors(t *testing.T) {
	r := newFixture()
	_, err := resolveNode(r, "machine.nonexistent", nil)
	if err == nil {
		t.Fatal("expected an error for an unknown state id")
	}
	if _, ok := err.(*InvalidStateValueError); !ok {
		t.Errorf("got %T, want *InvalidStateValueError", err)
	}
}

func TestCombinePrefersSecondArgument(t *testing.T) {
	a := &Tree{ID: "machine", Children: map[string]*Tree{
		"on": {ID: "machine.on", Children: map[string]*Tree{"idle": {ID: "machine.on.idle"}}},
	}}
	b := &Tree{ID: "machine", Children: map[string]*Tree{
		"on": {ID: "machine.on", Children: map[string]*Tree{"busy": {ID: "machine.on.busy"}}},
	}}
	combined := Combine(a, b)
	leaves := Leaves(combined)
	if len(leaves) != 1 || leaves[0] != "machine.on.busy" {
		t.Errorf("got %v, want [machine.on.busy]", leaves)
	}
}

func TestMatches(t *testing.T) {
	tree := &Tree{ID: "machine", Children: map[string]*Tree{
		"on": {ID: "machine.on", Children: map[string]*Tree{"idle": {ID: "machine.on.idle"}}},
	}}
	if !Matches("machine.on", tree) {
		t.Error("machine.on should match as an active ancestor")
	}
	if Matches("machine.off", tree) {
		t.Error("machine.off should not match")
	}
}

func TestAncestors(t *testing.T) {
	got := Ancestors("machine.on.idle")
	want := []string{"machine", "machine.on", "machine.on.idle"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}

func TestToValueRoundTrip(t *testing.T) {
	tree := &Tree{ID: "machine", Children: map[string]*Tree{
		"on": {ID: "machine.on", Children: map[string]*Tree{"idle": {ID: "machine.on.idle"}}},
	}}
	v := ToValue(tree)
	if v.IsLeaf() {
		t.Fatal("expected a compound value")
	}
	if _, ok := v.Children["on"]; !ok {
		t.Error("expected an \"on\" child in the converted value")
	}
}
