package dag

import (
	"container/heap"
	"context"
	"sort"

	"github.com/vk/taskgrid/internal/ctxlog"
)

// Build constructs a complete, validated dependency graph from the ordered
// list of nodes. The order of nodes is the catalog order used to break ties.
func Build(ctx context.Context, nodes []Node) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Build: Starting graph construction.", "node_count", len(nodes))

	g := &Graph{
		names: make([]string, 0, len(nodes)),
		index: make(map[string]int, len(nodes)),
	}

	// First pass: register every node so parents can be referenced in any order.
	for _, n := range nodes {
		if _, exists := g.index[n.ID]; exists {
			return nil, &GraphError{Kind: ErrDuplicateTask, Task: n.ID}
		}
		g.index[n.ID] = len(g.names)
		g.names = append(g.names, n.ID)
	}

	// Second pass: link parents.
	g.parents = make([][]int, len(g.names))
	g.children = make([][]int, len(g.names))
	for i, n := range nodes {
		seen := make(map[int]struct{}, len(n.Parents))
		for _, p := range n.Parents {
			pi, ok := g.index[p]
			if !ok {
				return nil, &GraphError{Kind: ErrUnknownParent, Task: n.ID, Parent: p}
			}
			if _, dup := seen[pi]; dup {
				continue
			}
			seen[pi] = struct{}{}
			g.parents[i] = append(g.parents[i], pi)
			g.children[pi] = append(g.children[pi], i)
		}
	}
	for i := range g.names {
		sort.Ints(g.parents[i])
		sort.Ints(g.children[i])
	}
	logger.Debug("Build: Node linking complete.")

	// Third pass: order.
	order, rest := g.kahn()
	if len(rest) > 0 {
		return nil, &GraphError{Kind: ErrCycle, Tasks: rest}
	}
	g.order = order
	logger.Debug("Build: Graph construction successful.", "order", g.Order())

	return g, nil
}

// kahn runs Kahn's algorithm with a frontier ordered by catalog index. It
// returns the emitted order and, if the graph has a cycle, the names of every
// node that could not be emitted.
func (g *Graph) kahn() ([]int, []string) {
	indeg := make([]int, len(g.names))
	for i := range g.names {
		indeg[i] = len(g.parents[i])
	}

	frontier := &intMinHeap{}
	for i, d := range indeg {
		if d == 0 {
			heap.Push(frontier, i)
		}
	}

	order := make([]int, 0, len(g.names))
	for frontier.Len() > 0 {
		u := heap.Pop(frontier).(int)
		order = append(order, u)
		for _, c := range g.children[u] {
			indeg[c]--
			if indeg[c] == 0 {
				heap.Push(frontier, c)
			}
		}
	}

	if len(order) == len(g.names) {
		return order, nil
	}

	var rest []string
	for i, d := range indeg {
		if d > 0 {
			rest = append(rest, g.names[i])
		}
	}
	return nil, rest
}

// intMinHeap is a container/heap of catalog indices.
type intMinHeap []int

func (h intMinHeap) Len() int           { return len(h) }
func (h intMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *intMinHeap) Push(x any) { *h = append(*h, x.(int)) }

func (h *intMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
