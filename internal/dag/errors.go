package dag

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrCycle         = errors.New("cycle detected")
	ErrUnknownParent = errors.New("unknown parent")
	ErrDuplicateTask = errors.New("duplicate task")
)

// GraphError describes why a graph could not be built. It is fatal for the run.
type GraphError struct {
	Kind error
	// Task is the offending task, when a single task is at fault.
	Task string
	// Parent is the missing parent name for ErrUnknownParent.
	Parent string
	// Tasks lists every task implicated in a cycle, in catalog order.
	Tasks []string
}

func (e *GraphError) Error() string {
	switch {
	case errors.Is(e.Kind, ErrUnknownParent):
		return fmt.Sprintf("%s: task %q depends on undefined task %q", e.Kind, e.Task, e.Parent)
	case errors.Is(e.Kind, ErrCycle):
		return fmt.Sprintf("%s involving tasks: %s", e.Kind, strings.Join(e.Tasks, ", "))
	case e.Task != "":
		return fmt.Sprintf("%s: %q", e.Kind, e.Task)
	default:
		return e.Kind.Error()
	}
}

func (e *GraphError) Unwrap() error { return e.Kind }
