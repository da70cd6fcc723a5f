package statechart

import (
	"time"

	"github.com/harelstate/statechart/internal/statevalue"
)

// MachineSnapshot is the serializable snapshot of a running interpreter,
// grounded on the teacher's internal/core.MachineSnapshot: enough to
// reconstruct a configuration and extended state across a process restart
// without replaying every event that produced it.
type MachineSnapshot struct {
	MachineID string    `json:"machineID" yaml:"machineID"`
	Active    []string  `json:"active" yaml:"active"`
	Context   any       `json:"context" yaml:"context"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// Persister saves and loads MachineSnapshots, matching the teacher's
// internal/core.Persister interface so internal/production's JSON/YAML
// adapters can implement it unchanged in shape.
type Persister interface {
	Save(snapshot MachineSnapshot) error
	Load(machineID string) (MachineSnapshot, error)
}

// MachineMetadata accompanies a published event, matching the teacher's
// internal/core.MachineMetadata.
type MachineMetadata struct {
	MachineID  string    `json:"machineID" yaml:"machineID"`
	Transition string    `json:"transition" yaml:"transition"`
	Timestamp  time.Time `json:"timestamp" yaml:"timestamp"`
}

// EventPublisher fans out committed transitions to an external sink,
// matching the teacher's internal/core.EventPublisher.
type EventPublisher interface {
	Publish(event Event, metadata MachineMetadata) error
	Close() error
}

// Registry manages versioned MachineSnapshots across many interpreters,
// matching the teacher's internal/core.Registry.
type Registry interface {
	Register(machineID string, snapshot MachineSnapshot) (version string, err error)
	Latest(machineID string) (MachineSnapshot, error)
	Version(machineID, version string) (MachineSnapshot, error)
	ListVersions(machineID string) ([]string, error)
	ListMachines() []string
}

// Snapshot captures the interpreter's current configuration and context.
// It returns ErrInterpreterNotStarted if the interpreter has never been
// started.
func (it *Interpreter) Snapshot() (MachineSnapshot, error) {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.state == nil {
		return MachineSnapshot{}, ErrInterpreterNotStarted
	}
	return MachineSnapshot{
		MachineID: it.machine.ID,
		Active:    it.state.ActiveIDs(),
		Context:   it.state.Context,
		Timestamp: it.clock.Now(),
	}, nil
}

// Restore installs snap as the interpreter's current state without running
// any entry actions or notifying listeners, matching the teacher's
// Machine.Restore: a resumed process trusts the persisted configuration
// rather than re-deriving it from a default entry path. Activities and
// invoked children are not restarted; a host that needs them back running
// must re-invoke the relevant actions itself after Restore.
func (it *Interpreter) Restore(snap MachineSnapshot) error {
	tree, err := it.machine.treeFromActiveIDs(snap.Active)
	if err != nil {
		return err
	}
	it.mu.Lock()
	defer it.mu.Unlock()
	it.state = &State{
		Tree:         tree,
		Context:      snap.Context,
		Event:        Event{Type: "xstate.restore"},
		historyValue: map[string]*statevalue.Tree{},
		Done:         it.machine.isDone(tree),
	}
	it.status = Running
	return nil
}

// treeFromActiveIDs rebuilds a configuration tree from a flat list of
// active state ids (typically leaves, but any depth is accepted), by
// grafting each id's ancestor chain onto a shared root.
func (m *Machine) treeFromActiveIDs(ids []string) (*statevalue.Tree, error) {
	root := &statevalue.Tree{ID: m.root.ID}
	for _, id := range ids {
		n, ok := m.byID[id]
		if !ok {
			return nil, &InvalidStateValueError{Key: id}
		}
		chain := ancestorChain(n)
		cur := root
		for i := 1; i < len(chain); i++ {
			key := chain[i].Key
			if cur.Children == nil {
				cur.Children = map[string]*statevalue.Tree{}
			}
			next, ok := cur.Children[key]
			if !ok {
				next = &statevalue.Tree{ID: chain[i].ID}
				cur.Children[key] = next
			}
			cur = next
		}
	}
	return root, nil
}
