// Package production provides production integrations: persistence, event
// publishing, and visualization, adapted from the teacher's own
// internal/production package but retargeted at statechart.MachineSnapshot.
package production

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/harelstate/statechart"
	"github.com/harelstate/statechart/internal/statevalue"
)

// onDiskSnapshot is what a Persister actually writes to disk: the active
// configuration as a nested StateValue document, the same shape a host
// would hand-build to call statevalue.Resolve, rather than the flat,
// machine-internal id list MachineSnapshot.Active carries at runtime. A
// hand-edited snapshot file on disk therefore reads like any other
// StateValue, not like an opaque dump of bookkeeping fields.
type onDiskSnapshot struct {
	MachineID string            `json:"machineId" yaml:"machineId"`
	State     *statevalue.Value `json:"state" yaml:"state"`
	Context   any               `json:"context,omitempty" yaml:"context,omitempty"`
	Timestamp time.Time         `json:"timestamp" yaml:"timestamp"`
}

func toOnDisk(snapshot statechart.MachineSnapshot) onDiskSnapshot {
	tree := treeFromIDs(snapshot.MachineID, snapshot.Active)
	return onDiskSnapshot{
		MachineID: snapshot.MachineID,
		State:     statevalue.ToValue(tree),
		Context:   snapshot.Context,
		Timestamp: snapshot.Timestamp,
	}
}

func fromOnDisk(doc onDiskSnapshot) (statechart.MachineSnapshot, error) {
	if doc.State == nil {
		return statechart.MachineSnapshot{}, fmt.Errorf("machine %q: snapshot has no state value", doc.MachineID)
	}
	return statechart.MachineSnapshot{
		MachineID: doc.MachineID,
		Active:    idsFromValue(doc.MachineID, doc.State),
		Context:   doc.Context,
		Timestamp: doc.Timestamp,
	}, nil
}

// treeFromIDs rebuilds the tree shape implied by a flat list of dotted
// state ids (ActiveIDs already includes every active ancestor, not just
// leaves) without needing a live Machine to resolve against — the
// schema-free counterpart to Machine.treeFromActiveIDs used by Restore.
func treeFromIDs(rootID string, ids []string) *statevalue.Tree {
	root := &statevalue.Tree{ID: rootID}
	prefix := rootID + "."
	for _, id := range ids {
		if id == rootID || !strings.HasPrefix(id, prefix) {
			continue
		}
		segs := strings.Split(strings.TrimPrefix(id, prefix), ".")
		cur := root
		built := rootID
		for _, seg := range segs {
			built += "." + seg
			if cur.Children == nil {
				cur.Children = map[string]*statevalue.Tree{}
			}
			next, ok := cur.Children[seg]
			if !ok {
				next = &statevalue.Tree{ID: built}
				cur.Children[seg] = next
			}
			cur = next
		}
	}
	return root
}

// idsFromValue flattens a nested StateValue back into the full dotted id
// list a MachineSnapshot expects, the inverse of statevalue.ToValue.
func idsFromValue(rootID string, v *statevalue.Value) []string {
	var out []string
	var walk func(id string, v *statevalue.Value)
	walk = func(id string, v *statevalue.Value) {
		out = append(out, id)
		if v == nil || v.IsLeaf() {
			return
		}
		for key, child := range v.Children {
			walk(id+"."+key, child)
		}
	}
	walk(rootID, v)
	sort.Strings(out)
	return out
}

// JSONPersister is a stdlib-only, file-based Persister using JSON.
type JSONPersister struct {
	dir string
}

// NewJSONPersister creates a JSONPersister rooted at dir, creating it if
// necessary.
func NewJSONPersister(dir string) (*JSONPersister, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &JSONPersister{dir: dir}, nil
}

func (p *JSONPersister) Save(snapshot statechart.MachineSnapshot) error {
	data, err := json.MarshalIndent(toOnDisk(snapshot), "", "  ")
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	fn := filepath.Join(p.dir, snapshot.MachineID+".json")
	if err := os.WriteFile(fn, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", fn, err)
	}
	return nil
}

func (p *JSONPersister) Load(machineID string) (statechart.MachineSnapshot, error) {
	fn := filepath.Join(p.dir, machineID+".json")
	data, err := os.ReadFile(fn)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return statechart.MachineSnapshot{}, fmt.Errorf("machine %q: %w", machineID, os.ErrNotExist)
		}
		return statechart.MachineSnapshot{}, fmt.Errorf("read %s: %w", fn, err)
	}
	var doc onDiskSnapshot
	if err := json.Unmarshal(data, &doc); err != nil {
		return statechart.MachineSnapshot{}, fmt.Errorf("json unmarshal: %w", err)
	}
	return fromOnDisk(doc)
}

// YAMLPersister is a file-based Persister using YAML.
type YAMLPersister struct {
	dir string
}

// NewYAMLPersister creates a YAMLPersister rooted at dir, creating it if
// necessary.
func NewYAMLPersister(dir string) (*YAMLPersister, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &YAMLPersister{dir: dir}, nil
}

func (p *YAMLPersister) Save(snapshot statechart.MachineSnapshot) error {
	data, err := yaml.Marshal(toOnDisk(snapshot))
	if err != nil {
		return fmt.Errorf("yaml marshal: %w", err)
	}
	fn := filepath.Join(p.dir, snapshot.MachineID+".yaml")
	if err := os.WriteFile(fn, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", fn, err)
	}
	return nil
}

func (p *YAMLPersister) Load(machineID string) (statechart.MachineSnapshot, error) {
	fn := filepath.Join(p.dir, machineID+".yaml")
	data, err := os.ReadFile(fn)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return statechart.MachineSnapshot{}, fmt.Errorf("machine %q: %w", machineID, os.ErrNotExist)
		}
		return statechart.MachineSnapshot{}, fmt.Errorf("read %s: %w", fn, err)
	}
	var doc onDiskSnapshot
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return statechart.MachineSnapshot{}, fmt.Errorf("yaml unmarshal: %w", err)
	}
	return fromOnDisk(doc)
}
