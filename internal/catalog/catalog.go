// Package catalog holds the run-scoped set of task definitions, in the order
// they were declared.
package catalog

import (
	"fmt"

	"github.com/vk/taskgrid/internal/dag"
)

// Properties that describe a task's identity rather than its runner
// configuration. They are never passed to a runner.
var IdentityProperties = []string{"name", "type", "tags", "dag", "parents", "parameters", "class", "preset"}

// TaskDefinition is the parsed, immutable definition of one task.
type TaskDefinition struct {
	Name    string
	Dag     string
	Tags    []string
	Parents []string
	Type    string
	// Class names the implementation of an external task as "<module>.<Class>".
	Class  string
	Preset string
	// Parameters is the raw, untemplated task parameter tree.
	Parameters map[string]any
	// Properties is the raw, untemplated runner configuration tree: every key
	// of the definition except the identity properties.
	Properties map[string]any
}

// HasTag reports whether the task carries the given tag.
func (t *TaskDefinition) HasTag(tag string) bool {
	for _, tg := range t.Tags {
		if tg == tag {
			return true
		}
	}
	return false
}

// Catalog is an insertion-ordered collection of task definitions.
type Catalog struct {
	tasks []*TaskDefinition
	index map[string]int
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{index: make(map[string]int)}
}

// Add appends a definition. Task names are unique across the whole catalog.
func (c *Catalog) Add(t *TaskDefinition) error {
	if t.Name == "" {
		return fmt.Errorf("task in dag %q has no name", t.Dag)
	}
	if _, exists := c.index[t.Name]; exists {
		return fmt.Errorf("duplicate task %q (dag %q)", t.Name, t.Dag)
	}
	c.index[t.Name] = len(c.tasks)
	c.tasks = append(c.tasks, t)
	return nil
}

// Get returns the definition of a task.
func (c *Catalog) Get(name string) (*TaskDefinition, bool) {
	i, ok := c.index[name]
	if !ok {
		return nil, false
	}
	return c.tasks[i], true
}

// Tasks returns every definition in insertion order.
func (c *Catalog) Tasks() []*TaskDefinition {
	out := make([]*TaskDefinition, len(c.tasks))
	copy(out, c.tasks)
	return out
}

// Len returns the number of tasks.
func (c *Catalog) Len() int {
	return len(c.tasks)
}

// Nodes converts the catalog into graph builder input, preserving order.
func (c *Catalog) Nodes() []dag.Node {
	nodes := make([]dag.Node, len(c.tasks))
	for i, t := range c.tasks {
		nodes[i] = dag.Node{ID: t.Name, Parents: t.Parents}
	}
	return nodes
}
