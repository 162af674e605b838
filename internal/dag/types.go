package dag

// Node is the builder input for a single task: its unique name and the names
// of the tasks it depends on.
type Node struct {
	// ID is the unique task name.
	ID string
	// Parents holds the names of the tasks this node depends on.
	Parents []string
}

// Graph is an immutable, validated DAG. It is safe for concurrent read access.
type Graph struct {
	// names holds every node in catalog (insertion) order.
	names []string
	// index maps a node name to its position in names.
	index map[string]int
	// parents and children hold adjacency by catalog index, sorted ascending.
	parents  [][]int
	children [][]int
	// order is the topological order, as catalog indices.
	order []int
}
