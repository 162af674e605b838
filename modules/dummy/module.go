package dummy

import (
	"context"

	"github.com/vk/taskgrid/internal/registry"
	"github.com/vk/taskgrid/internal/task"
)

// Type is the task type handled by this module.
const Type = "dummy"

// Module implements the registry.Module interface for this package.
type Module struct{}

// Runner does nothing. Dummy tasks group dependencies.
type Runner struct {
	env *task.Env
}

func (r *Runner) Setup(ctx context.Context, env *task.Env, properties map[string]any) task.Result {
	r.env = env
	if len(properties) > 0 {
		env.Log().Warn("Dummy task ignores its properties.", "count", len(properties))
	}
	return task.Ok()
}

func (r *Runner) Compile(ctx context.Context) task.Result { return task.Ok() }

func (r *Runner) Run(ctx context.Context) task.Result {
	r.env.Log().Debug("Dummy task done.")
	return task.Ok()
}

// Register registers the runner with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner(Type, func() task.Runner { return &Runner{} })
}
