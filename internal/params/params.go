// Package params compiles a task's parameters and runner properties by
// cascading project, run and task level values through a template renderer.
package params

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dario.cat/mergo"

	"github.com/vk/taskgrid/internal/catalog"
	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/tmpl"
)

// DateLayout is the format of the start_dt and end_dt run variables.
const DateLayout = "2006-01-02"

// Phases reported by ConfigError.
const (
	PhaseParameters = "parameters"
	PhaseProperties = "properties"
)

// ConfigError reports a failure to render one of the task's trees.
type ConfigError struct {
	Task  string
	Phase string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("task %q: failed to compile %s: %v", e.Task, e.Phase, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// RunVars are the run-scoped variables every task can reference.
type RunVars struct {
	StartDt  time.Time
	EndDt    time.Time
	FullLoad bool
}

// Validate checks the reporting window.
func (v RunVars) Validate() error {
	if v.StartDt.After(v.EndDt) {
		return fmt.Errorf("start_dt (%s) is after end_dt (%s)", v.StartDt.Format(DateLayout), v.EndDt.Format(DateLayout))
	}
	return nil
}

// Scope returns the variables as template scope entries.
func (v RunVars) Scope() map[string]any {
	return map[string]any{
		"start_dt":  v.StartDt.Format(DateLayout),
		"end_dt":    v.EndDt.Format(DateLayout),
		"full_load": v.FullLoad,
	}
}

// Compiled is the fully rendered configuration of one task.
type Compiled struct {
	// Parameters is the rendered task parameter tree.
	Parameters map[string]any
	// Properties is the rendered runner configuration.
	Properties map[string]any
	// Scope is the final template scope: project parameters, run variables,
	// task identity and task parameters. Runners render their own templates
	// (SQL files) against it.
	Scope map[string]any
}

// Compiler renders task definitions. It is safe to reuse across tasks; it
// never mutates its inputs.
type Compiler struct {
	renderer tmpl.Renderer
	project  map[string]any
	vars     RunVars
}

// NewCompiler returns a compiler for one run.
func NewCompiler(r tmpl.Renderer, project map[string]any, vars RunVars) *Compiler {
	return &Compiler{renderer: r, project: project, vars: vars}
}

// BaseScope builds the scope used to render the task's parameter tree.
func (c *Compiler) BaseScope(td *catalog.TaskDefinition) (map[string]any, error) {
	scope, err := layer(c.project, c.vars.Scope())
	if err != nil {
		return nil, err
	}
	tags := make([]any, len(td.Tags))
	for i, t := range td.Tags {
		tags[i] = t
	}
	scope["task"] = map[string]any{
		"name": td.Name,
		"dag":  td.Dag,
		"tags": tags,
	}
	return scope, nil
}

// Compile renders the task's parameter tree, extends the scope with the
// result, then renders the properties tree. On failure nothing is returned.
func (c *Compiler) Compile(ctx context.Context, td *catalog.TaskDefinition) (*Compiled, error) {
	logger := ctxlog.FromContext(ctx)

	scope, err := c.BaseScope(td)
	if err != nil {
		return nil, &ConfigError{Task: td.Name, Phase: PhaseParameters, Err: err}
	}

	parameters, err := tmpl.RenderTree(c.renderer, td.Parameters, scope)
	if err != nil {
		return nil, &ConfigError{Task: td.Name, Phase: PhaseParameters, Err: err}
	}
	logger.Debug("Task parameters compiled.", "count", len(parameters))

	scope, err = layer(scope, parameters)
	if err != nil {
		return nil, &ConfigError{Task: td.Name, Phase: PhaseParameters, Err: err}
	}

	properties, err := tmpl.RenderTree(c.renderer, td.Properties, scope)
	if err != nil {
		return nil, &ConfigError{Task: td.Name, Phase: PhaseProperties, Err: err}
	}
	logger.Debug("Task properties compiled.", "count", len(properties))

	if parameters == nil {
		parameters = map[string]any{}
	}
	if properties == nil {
		properties = map[string]any{}
	}
	return &Compiled{Parameters: parameters, Properties: properties, Scope: scope}, nil
}

var identity = func(s string) (string, error) { return s, nil }

// layer returns a deep copy of base with over merged on top.
func layer(base, over map[string]any) (map[string]any, error) {
	out, err := clone(base)
	if err != nil {
		return nil, err
	}
	if len(over) == 0 {
		return out, nil
	}
	overCopy, err := clone(over)
	if err != nil {
		return nil, err
	}
	if err := mergo.Merge(&out, overCopy, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge scope: %w", err)
	}
	return out, nil
}

func clone(m map[string]any) (map[string]any, error) {
	if m == nil {
		return map[string]any{}, nil
	}
	out, err := tmpl.WalkMap(m, identity)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// IsConfigError reports whether err is a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
