package query

import "github.com/vk/taskgrid/internal/dag"

// Selection is the set of tasks a run operates on.
type Selection struct {
	names []string
	set   map[string]struct{}
}

// Select computes the selected set from an operation sequence. With no include
// operations the selection starts from every task in the graph; otherwise it
// starts empty. Operations are then applied strictly in order: an include adds
// the task and its requested closures, an exclude removes the same computed
// set. Closures are computed over the graph alone, independently of the
// current selection.
func Select(ops []Operation, g *dag.Graph) *Selection {
	set := make(map[string]struct{})

	hasInclude := false
	for _, op := range ops {
		if op.Kind == Include {
			hasInclude = true
			break
		}
	}
	if !hasInclude {
		for _, n := range g.Names() {
			set[n] = struct{}{}
		}
	}

	for _, op := range ops {
		affected := []string{op.Task}
		if op.Upstream {
			affected = append(affected, g.Upstream(op.Task)...)
		}
		if op.Downstream {
			affected = append(affected, g.Downstream(op.Task)...)
		}

		for _, n := range affected {
			if op.Kind == Include {
				set[n] = struct{}{}
			} else {
				delete(set, n)
			}
		}
	}

	s := &Selection{set: set}
	for _, n := range g.Names() {
		if _, ok := set[n]; ok {
			s.names = append(s.names, n)
		}
	}
	return s
}

// Contains reports whether the task is selected.
func (s *Selection) Contains(name string) bool {
	_, ok := s.set[name]
	return ok
}

// Names returns the selected tasks in catalog order.
func (s *Selection) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Len returns the number of selected tasks.
func (s *Selection) Len() int {
	return len(s.names)
}
