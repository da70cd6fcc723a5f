package production

import (
	"encoding/json"

	"github.com/harelstate/statechart"
)

// DefaultVisualizer is the stdlib-only Visualizer. Unlike the teacher's own
// DefaultVisualizer, it exports only JSON: MachineConfig here carries Go
// func fields (guards, actions, delay functions) that cannot round-trip
// through encoding/json, so ExportJSON walks the already-built Machine's
// StateNode tree into a serializable DTO instead of marshaling the config
// directly. A DOT/Graphviz export would need the same treatment for no
// added value over JSON, so it is dropped rather than carried forward.
type DefaultVisualizer struct{}

type visualNode struct {
	ID       string              `json:"id"`
	Type     string              `json:"type"`
	Active   bool                `json:"active,omitempty"`
	Children []string            `json:"children,omitempty"`
	On       map[string][]string `json:"on,omitempty"`
}

type visualDoc struct {
	MachineID string       `json:"machineId"`
	Active    []string     `json:"active,omitempty"`
	Nodes     []visualNode `json:"nodes"`
}

// ExportJSON serializes m's state-node tree, marking every id in active.
func (DefaultVisualizer) ExportJSON(m *statechart.Machine, active []string) ([]byte, error) {
	activeSet := make(map[string]bool, len(active))
	for _, id := range active {
		activeSet[id] = true
	}

	doc := visualDoc{MachineID: m.ID, Active: active}
	var walk func(n *statechart.StateNode)
	walk = func(n *statechart.StateNode) {
		vn := visualNode{ID: n.ID, Type: nodeTypeName(n.Type), Active: activeSet[n.ID]}
		for _, key := range n.ChildOrder {
			vn.Children = append(vn.Children, n.States[key].ID)
		}
		if len(n.On) > 0 {
			vn.On = make(map[string][]string, len(n.On))
			for evt, transitions := range n.On {
				for _, tr := range transitions {
					vn.On[evt] = append(vn.On[evt], tr.Targets...)
				}
			}
		}
		doc.Nodes = append(doc.Nodes, vn)
		for _, key := range n.ChildOrder {
			walk(n.States[key])
		}
	}
	walk(m.Root())

	return json.MarshalIndent(doc, "", "  ")
}

func nodeTypeName(t statechart.NodeType) string {
	switch t {
	case statechart.Atomic:
		return "atomic"
	case statechart.Compound:
		return "compound"
	case statechart.Parallel:
		return "parallel"
	case statechart.Final:
		return "final"
	case statechart.History:
		return "history"
	default:
		return "unknown"
	}
}
