package dag

import "sort"

// Len returns the number of nodes in the graph.
func (g *Graph) Len() int {
	return len(g.names)
}

// Has reports whether a node with the given name exists.
func (g *Graph) Has(name string) bool {
	_, ok := g.index[name]
	return ok
}

// Names returns every node name in catalog order.
func (g *Graph) Names() []string {
	out := make([]string, len(g.names))
	copy(out, g.names)
	return out
}

// Order returns the topological order: every parent precedes its children.
func (g *Graph) Order() []string {
	return g.namesOf(g.order)
}

// Parents returns the direct parents of a node in catalog order, or nil if the
// node does not exist.
func (g *Graph) Parents(name string) []string {
	i, ok := g.index[name]
	if !ok {
		return nil
	}
	return g.namesOf(g.parents[i])
}

// Children returns the direct children of a node in catalog order, or nil if
// the node does not exist.
func (g *Graph) Children(name string) []string {
	i, ok := g.index[name]
	if !ok {
		return nil
	}
	return g.namesOf(g.children[i])
}

// Upstream returns every ancestor of a node reachable through parent edges,
// excluding the node itself, in catalog order.
func (g *Graph) Upstream(name string) []string {
	return g.closure(name, g.parents)
}

// Downstream returns every descendant of a node reachable through child edges,
// excluding the node itself, in catalog order.
func (g *Graph) Downstream(name string) []string {
	return g.closure(name, g.children)
}

func (g *Graph) closure(name string, edges [][]int) []string {
	start, ok := g.index[name]
	if !ok {
		return nil
	}

	visited := make(map[int]struct{})
	stack := append([]int(nil), edges[start]...)
	for len(stack) > 0 {
		u := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := visited[u]; seen {
			continue
		}
		visited[u] = struct{}{}
		stack = append(stack, edges[u]...)
	}

	found := make([]int, 0, len(visited))
	for u := range visited {
		found = append(found, u)
	}
	sort.Ints(found)
	return g.namesOf(found)
}

func (g *Graph) namesOf(idx []int) []string {
	out := make([]string, len(idx))
	for i, u := range idx {
		out[i] = g.names[u]
	}
	return out
}
