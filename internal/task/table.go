package task

import (
	"fmt"
	"time"

	"github.com/vk/taskgrid/internal/catalog"
)

// Table owns every wrapper of a run. Wrappers refer to their parents by name
// and resolve them through the table.
type Table struct {
	wrappers []*Wrapper
	index    map[string]int
	now      func() time.Time
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{index: make(map[string]int), now: time.Now}
}

// SetClock replaces the time source used for stage timings.
func (t *Table) SetClock(now func() time.Time) {
	t.now = now
}

// Add constructs the wrapper of a task. Every parent must already be in the
// table, so wrappers have to be added in topological order.
func (t *Table) Add(td *catalog.TaskDefinition, inQuery bool) (*Wrapper, error) {
	if _, exists := t.index[td.Name]; exists {
		return nil, fmt.Errorf("task %q is already in the table", td.Name)
	}
	for _, p := range td.Parents {
		if _, ok := t.index[p]; !ok {
			return nil, fmt.Errorf("task %q added before its parent %q", td.Name, p)
		}
	}

	w := &Wrapper{
		def:     td,
		table:   t,
		inQuery: inQuery,
		timings: make(map[Stage]Timing),
		now:     func() time.Time { return t.now() },
	}
	t.index[td.Name] = len(t.wrappers)
	t.wrappers = append(t.wrappers, w)
	return w, nil
}

// Get returns a wrapper by task name.
func (t *Table) Get(name string) (*Wrapper, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.wrappers[i], true
}

// Wrappers returns every wrapper in insertion (topological) order.
func (t *Table) Wrappers() []*Wrapper {
	out := make([]*Wrapper, len(t.wrappers))
	copy(out, t.wrappers)
	return out
}

// Len returns the number of wrappers.
func (t *Table) Len() int { return len(t.wrappers) }
