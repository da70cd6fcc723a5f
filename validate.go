package statechart

import "fmt"

// validateTree checks the structural invariants NewMachine relies on: every
// compound state names a real initial child, every history node's owning
// region is resolvable, and every transition target resolves to a known
// state id (spec §7).
func validateTree(root *StateNode) error {
	index := map[string]*StateNode{}
	indexTree(root, index)

	var walk func(n *StateNode) error
	walk = func(n *StateNode) error {
		switch n.Type {
		case Compound:
			if n.Initial == "" {
				return fmt.Errorf("compound state %q has no initial child", n.ID)
			}
			if _, ok := n.States[n.Initial]; !ok {
				return fmt.Errorf("compound state %q names unknown initial child %q", n.ID, n.Initial)
			}
		case Parallel:
			if len(n.ChildOrder) == 0 {
				return fmt.Errorf("parallel state %q has no regions", n.ID)
			}
		case History:
			if n.Parent == nil {
				return fmt.Errorf("history state %q has no owning region", n.ID)
			}
			if n.HistoryDefault != "" {
				if _, ok := n.Parent.States[n.HistoryDefault]; !ok {
					return fmt.Errorf("history state %q names unknown default %q", n.ID, n.HistoryDefault)
				}
			}
		}
		for _, t := range n.On {
			for _, tr := range t {
				for _, spec := range tr.Targets {
					if _, err := resolveTargetSpec(index, n, spec); err != nil {
						return err
					}
				}
			}
		}
		for _, child := range n.States {
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(root)
}

func indexTree(n *StateNode, out map[string]*StateNode) {
	out[n.ID] = n
	for _, child := range n.States {
		indexTree(child, out)
	}
}
