package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/vk/taskgrid/internal/catalog"
	"github.com/vk/taskgrid/internal/task"
)

// TypeExternal is the discriminator of application supplied runners.
const TypeExternal = "external"

// Constructor builds a fresh runner for one task.
type Constructor func() task.Runner

// Module is the interface that all core modules must implement to be registered.
type Module interface {
	Register(r *Registry)
}

// Registry holds the runner constructors of a single application instance.
type Registry struct {
	constructors map[string]Constructor
	classes      ClassResolver
}

// New creates a registry. External runners are resolved through classes,
// which may be nil when the application has none.
func New(classes ClassResolver) *Registry {
	return &Registry{
		constructors: make(map[string]Constructor),
		classes:      classes,
	}
}

// RegisterRunner registers the constructor of a task type.
func (r *Registry) RegisterRunner(typ string, ctor Constructor) {
	if typ == TypeExternal {
		panic(fmt.Sprintf("runner type '%s' is reserved", typ))
	}
	if _, exists := r.constructors[typ]; exists {
		panic(fmt.Sprintf("runner with type '%s' already registered", typ))
	}
	slog.Debug("Registering runner.", "type", typ)
	r.constructors[typ] = ctor
}

// Types returns the registered task types in sorted order.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.constructors))
	for t := range r.constructors {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// ResolveRunner constructs the runner of a task definition. Failures are
// reported as task errors so that they only fail the one task.
func (r *Registry) ResolveRunner(td *catalog.TaskDefinition) (task.Runner, *task.Error) {
	if td.Type == "" {
		return nil, &task.Error{Kind: task.KindSetup, Code: "missing_type"}
	}
	if td.Type == TypeExternal {
		return r.resolveExternal(td)
	}

	ctor, ok := r.constructors[td.Type]
	if !ok {
		return nil, &task.Error{
			Kind:    task.KindSetup,
			Code:    "invalid_task_type",
			Details: map[string]any{"type": td.Type, "valid_types": strings.Join(r.Types(), ", ")},
		}
	}
	return construct(ctor)
}

func (r *Registry) resolveExternal(td *catalog.TaskDefinition) (task.Runner, *task.Error) {
	module, class, ok := SplitClass(td.Class)
	if !ok {
		return nil, &task.Error{
			Kind:    task.KindClassLoader,
			Code:    CodeMissingClass,
			Details: map[string]any{"class": td.Class},
		}
	}
	if r.classes == nil {
		return nil, &task.Error{
			Kind:    task.KindClassLoader,
			Code:    CodeModuleNotRegistered,
			Details: map[string]any{"module": module},
		}
	}

	ctor, err := r.classes.Resolve(module, class)
	if err != nil {
		te := &task.Error{Kind: task.KindClassLoader, Code: CodeLoadClassException, Err: err}
		var ce *ClassError
		if errors.As(err, &ce) {
			te.Code = ce.Code
			te.Err = nil
			te.Details = map[string]any{"module": ce.Module, "class": ce.Class}
		}
		return nil, te
	}
	return construct(ctor)
}

// construct calls a constructor, reporting a panic as a class loading error.
func construct(ctor Constructor) (runner task.Runner, terr *task.Error) {
	defer func() {
		if p := recover(); p != nil {
			runner = nil
			terr = &task.Error{
				Kind:    task.KindClassLoader,
				Code:    CodeLoadClassException,
				Details: map[string]any{"panic": fmt.Sprint(p)},
			}
		}
	}()
	runner = ctor()
	if runner == nil {
		return nil, &task.Error{Kind: task.KindSetup, Code: "nil_runner"}
	}
	return runner, nil
}
