package testutil

import (
	"context"
	"sync"

	"github.com/vk/taskgrid/internal/catalog"
	"github.com/vk/taskgrid/internal/task"
)

// FakeRunner is a scripted task.Runner. A nil hook returns task.Ok().
type FakeRunner struct {
	SetupFn   func(env *task.Env, properties map[string]any) task.Result
	CompileFn func() task.Result
	RunFn     func() task.Result

	mu         sync.Mutex
	calls      []string
	Env        *task.Env
	Properties map[string]any
}

func (r *FakeRunner) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

// Calls returns the lifecycle methods invoked so far.
func (r *FakeRunner) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

func (r *FakeRunner) Setup(_ context.Context, env *task.Env, properties map[string]any) task.Result {
	r.record("setup")
	r.Env = env
	r.Properties = properties
	if r.SetupFn != nil {
		return r.SetupFn(env, properties)
	}
	return task.Ok()
}

func (r *FakeRunner) Compile(context.Context) task.Result {
	r.record("compile")
	if r.CompileFn != nil {
		return r.CompileFn()
	}
	return task.Ok()
}

func (r *FakeRunner) Run(context.Context) task.Result {
	r.record("run")
	if r.RunFn != nil {
		return r.RunFn()
	}
	return task.Ok()
}

// FakeResolver hands out FakeRunners by task name. Tasks without a scripted
// runner get a default one. Every construction is recorded.
type FakeResolver struct {
	Runners map[string]*FakeRunner
	Errors  map[string]*task.Error

	mu          sync.Mutex
	constructed []string
}

func (f *FakeResolver) ResolveRunner(td *catalog.TaskDefinition) (task.Runner, *task.Error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.Errors[td.Name]; ok {
		return nil, e
	}
	f.constructed = append(f.constructed, td.Name)
	if r, ok := f.Runners[td.Name]; ok {
		return r, nil
	}
	if f.Runners == nil {
		f.Runners = make(map[string]*FakeRunner)
	}
	r := &FakeRunner{}
	f.Runners[td.Name] = r
	return r, nil
}

// Constructed returns the names of tasks a runner was built for.
func (f *FakeResolver) Constructed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.constructed))
	copy(out, f.constructed)
	return out
}
