package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vk/taskgrid/internal/catalog"
	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/params"
)

// Stage is one phase of the lifecycle.
type Stage string

const (
	StageSetup   Stage = "setup"
	StageCompile Stage = "compile"
	StageRun     Stage = "run"
)

// ParseStage validates an execution stage name.
func ParseStage(s string) (Stage, error) {
	switch Stage(s) {
	case StageCompile, StageRun:
		return Stage(s), nil
	}
	return "", fmt.Errorf("unknown stage %q: must be %q or %q", s, StageCompile, StageRun)
}

// Timing is the wall clock span of one stage.
type Timing struct {
	Start time.Time
	End   time.Time
}

// Duration of the stage, zero while it is running.
func (t Timing) Duration() time.Duration {
	if t.End.IsZero() {
		return 0
	}
	return t.End.Sub(t.Start)
}

// SetupDeps are the run-wide collaborators of the setup stage.
type SetupDeps struct {
	Compiler *params.Compiler
	Resolver Resolver
	Env      Env
}

// Wrapper is the run-scoped record of one task. Only the orchestrator
// goroutine mutates it.
type Wrapper struct {
	def     *catalog.TaskDefinition
	table   *Table
	inQuery bool

	status   Status
	err      *Error
	runner   Runner
	compiled *params.Compiled
	timings  map[Stage]Timing

	now func() time.Time
}

// Name returns the task name.
func (w *Wrapper) Name() string { return w.def.Name }

// Definition returns the task definition.
func (w *Wrapper) Definition() *catalog.TaskDefinition { return w.def }

// InQuery reports whether the task was selected for this run.
func (w *Wrapper) InQuery() bool { return w.inQuery }

// Status returns the current status.
func (w *Wrapper) Status() Status { return w.status }

// Err returns the failure that ended the task, if any.
func (w *Wrapper) Err() *Error { return w.err }

// Runner returns the runner, nil until one has been constructed.
func (w *Wrapper) Runner() Runner { return w.runner }

// Compiled returns the compiled configuration, nil unless compilation
// succeeded.
func (w *Wrapper) Compiled() *params.Compiled { return w.compiled }

// Timing returns the recorded span of a stage.
func (w *Wrapper) Timing(s Stage) (Timing, bool) {
	t, ok := w.timings[s]
	return t, ok
}

// Parents resolves the parent wrappers through the table.
func (w *Wrapper) Parents() []*Wrapper {
	out := make([]*Wrapper, 0, len(w.def.Parents))
	for _, p := range w.def.Parents {
		if pw, ok := w.table.Get(p); ok {
			out = append(out, pw)
		}
	}
	return out
}

// CanRun is true iff the task itself is SETTING_UP or READY and no parent is
// in a blocking state. A parent blocks unless it is NOT_IN_QUERY, READY or
// SUCCEEDED.
func (w *Wrapper) CanRun() bool {
	if !runnable(w.status) {
		return false
	}
	for _, p := range w.Parents() {
		if !parentAllows(p.status) {
			return false
		}
	}
	return true
}

func (w *Wrapper) setStatus(to Status) {
	if !CanTransition(w.status, to) {
		panic(fmt.Sprintf("task %q: illegal status transition %s -> %s", w.def.Name, w.status, to))
	}
	w.status = to
}

func (w *Wrapper) fail(to Status, e *Error) {
	w.err = e
	w.setStatus(to)
}

func (w *Wrapper) begin(s Stage) {
	w.timings[s] = Timing{Start: w.now()}
}

func (w *Wrapper) end(s Stage) {
	t := w.timings[s]
	t.End = w.now()
	w.timings[s] = t
}

// Setup runs the setup stage: query gating, the first CanRun check,
// runner resolution, parameter compilation and the runner's own setup.
func (w *Wrapper) Setup(ctx context.Context, deps SetupDeps) {
	ctx = ctxlog.WithTask(ctx, w.def.Name)
	logger := ctxlog.FromContext(ctx)

	w.begin(StageSetup)
	defer w.end(StageSetup)
	w.setStatus(SettingUp)

	if !w.inQuery {
		logger.Debug("Task not in query.")
		w.setStatus(NotInQuery)
		return
	}

	if !w.CanRun() {
		logger.Warn("Skipping task setup: a parent is not runnable.")
		w.setStatus(Skipped)
		return
	}

	runner, rerr := deps.Resolver.ResolveRunner(w.def)
	if rerr != nil {
		logger.Error("Task runner could not be resolved.", "error", rerr)
		w.fail(SetupFailed, rerr)
		return
	}
	w.runner = runner

	compiled, err := deps.Compiler.Compile(ctx, w.def)
	if err != nil {
		code := "compile_task_parameters"
		var ce *params.ConfigError
		if errors.As(err, &ce) && ce.Phase == params.PhaseProperties {
			code = "compile_task_properties"
		}
		logger.Error("Task configuration failed to compile.", "error", err)
		w.fail(SetupFailed, &Error{Kind: KindConfig, Code: code, Err: err})
		return
	}
	w.compiled = compiled

	env := deps.Env.forTask(w.def, compiled, logger)
	res := invoke(func() Result { return runner.Setup(ctx, env, compiled.Properties) })
	if !res.IsOk() {
		logger.Error("Task setup failed.", "error", res.Error())
		w.fail(SetupFailed, res.Error())
		return
	}

	logger.Debug("Task ready.")
	w.setStatus(Ready)
}

// Execute runs the compile or run stage. A task that is already terminal
// keeps its status. Otherwise CanRun is checked again; stages visit tasks in
// topological order, so by now every in-query parent is terminal.
func (w *Wrapper) Execute(ctx context.Context, stage Stage) {
	ctx = ctxlog.WithTask(ctx, w.def.Name)
	logger := ctxlog.FromContext(ctx)

	if w.status.Terminal() {
		return
	}

	w.begin(stage)
	defer w.end(stage)

	if !w.CanRun() {
		logger.Warn("Skipping task: a parent did not succeed.", "stage", stage)
		w.setStatus(Skipped)
		return
	}

	var res Result
	switch stage {
	case StageCompile:
		res = invoke(func() Result { return w.runner.Compile(ctx) })
	case StageRun:
		res = invoke(func() Result { return w.runner.Run(ctx) })
	default:
		res = Fail(KindSetup, "unknown_stage", map[string]any{"stage": string(stage)})
	}

	if !res.IsOk() {
		logger.Error("Task failed.", "stage", stage, "error", res.Error())
		w.fail(Failed, res.Error())
		return
	}
	w.setStatus(Succeeded)
}

// Cancel marks a task that has not reached a terminal status as SKIPPED.
// A task outside the query ends NOT_IN_QUERY instead.
func (w *Wrapper) Cancel(cause error) {
	if w.status.Terminal() {
		return
	}
	if !w.inQuery {
		if w.status == Unknown {
			w.setStatus(SettingUp)
		}
		w.setStatus(NotInQuery)
		return
	}
	w.fail(Skipped, &Error{Kind: KindCancelled, Err: cause})
}

// invoke calls a runner operation, converting panics and malformed results
// into failures.
func invoke(fn func() Result) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			res = Fail(KindException, "panic", map[string]any{"panic": fmt.Sprint(p)})
		}
	}()
	res = fn()
	if !res.Valid() {
		return malformed()
	}
	return res
}
