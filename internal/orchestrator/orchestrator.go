package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vk/taskgrid/internal/catalog"
	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/dag"
	"github.com/vk/taskgrid/internal/events"
	"github.com/vk/taskgrid/internal/params"
	"github.com/vk/taskgrid/internal/query"
	"github.com/vk/taskgrid/internal/task"
)

// Options are the collaborators of a run.
type Options struct {
	Compiler *params.Compiler
	Resolver task.Resolver
	// Env carries the run-wide runner environment.
	Env   task.Env
	Sink  events.Sink
	RunID string
	// Now is the clock used for timings. Defaults to time.Now.
	Now func() time.Time
	// FailFast stops the run at the first SETUP_FAILED or FAILED task.
	FailFast bool
}

// ErrFailFast is the cause carried by tasks skipped after a fail-fast stop.
var ErrFailFast = errors.New("stopped after the first task failure")

// Run is the explicit context of one invocation. It owns the task table.
type Run struct {
	table   *task.Table
	opts    Options
	now     func() time.Time
	started time.Time
}

// New builds the task table in topological order. Every task of the graph
// gets a wrapper; whether it is in the query is fixed here.
func New(c *catalog.Catalog, g *dag.Graph, sel *query.Selection, opts Options) (*Run, error) {
	if opts.Compiler == nil || opts.Resolver == nil {
		return nil, fmt.Errorf("orchestrator needs a compiler and a runner resolver")
	}
	if opts.Sink == nil {
		opts.Sink = events.Discard
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	table := task.NewTable()
	table.SetClock(opts.Now)
	for _, name := range g.Order() {
		td, ok := c.Get(name)
		if !ok {
			return nil, fmt.Errorf("task %q is in the graph but not in the catalog", name)
		}
		if _, err := table.Add(td, sel.Contains(name)); err != nil {
			return nil, err
		}
	}

	return &Run{table: table, opts: opts, now: opts.Now}, nil
}

// Table returns the run's task table.
func (r *Run) Table() *task.Table { return r.table }

// Start runs setup followed by the given execution stage.
func (r *Run) Start(ctx context.Context, stage task.Stage) (*Summary, error) {
	if _, err := task.ParseStage(string(stage)); err != nil {
		return nil, fmt.Errorf("cannot execute stage: %w", err)
	}
	r.Setup(ctx)
	return r.Execute(ctx, stage), nil
}

// Setup runs the setup stage of every task.
func (r *Run) Setup(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	r.started = r.now()
	stageStart := r.started
	r.report(events.Event{Kind: events.StartStage, Context: events.ContextApp, Stage: string(task.StageSetup), Level: events.LevelInfo})
	logger.Info("Setting up tasks.", "tasks", r.table.Len())

	deps := task.SetupDeps{Compiler: r.opts.Compiler, Resolver: r.opts.Resolver, Env: r.opts.Env}
	wrappers := r.table.Wrappers()
	for i, w := range wrappers {
		if err := ctx.Err(); err != nil {
			r.cancelRemaining(ctx, task.StageSetup, wrappers[i:], err)
			break
		}
		if !w.InQuery() {
			w.Setup(ctx, deps)
			continue
		}
		r.reportTaskStart(w, task.StageSetup)
		w.Setup(ctx, deps)
		r.reportTaskFinish(w, task.StageSetup)
		if r.opts.FailFast && w.Status() == task.SetupFailed {
			r.cancelRemaining(ctx, task.StageSetup, wrappers[i+1:], ErrFailFast)
			break
		}
	}

	r.report(events.Event{Kind: events.FinishStage, Context: events.ContextApp, Stage: string(task.StageSetup), Level: events.LevelInfo, Duration: r.now().Sub(stageStart)})
}

// Execute runs one execution stage over every in-query task, then reports
// and returns the summary.
func (r *Run) Execute(ctx context.Context, stage task.Stage) *Summary {
	logger := ctxlog.FromContext(ctx)
	if r.started.IsZero() {
		r.started = r.now()
	}
	stageStart := r.now()
	r.report(events.Event{Kind: events.StartStage, Context: events.ContextApp, Stage: string(stage), Level: events.LevelInfo})
	logger.Info("🚀 Starting stage.", "stage", stage)

	wrappers := r.table.Wrappers()
	for i, w := range wrappers {
		if !w.InQuery() {
			continue
		}
		if err := ctx.Err(); err != nil {
			r.cancelRemaining(ctx, stage, wrappers[i:], err)
			break
		}
		if w.Status().Terminal() {
			logger.Debug("Task already finished, not executing.", "task", w.Name(), "status", w.Status())
			continue
		}
		r.reportTaskStart(w, stage)
		w.Execute(ctx, stage)
		r.reportTaskFinish(w, stage)
		if r.opts.FailFast && w.Status() == task.Failed {
			r.cancelRemaining(ctx, stage, wrappers[i+1:], ErrFailFast)
			break
		}
	}

	end := r.now()
	r.report(events.Event{Kind: events.FinishStage, Context: events.ContextApp, Stage: string(stage), Level: events.LevelInfo, Duration: end.Sub(stageStart)})

	summary := summarize(stage, wrappers, end.Sub(r.started))
	r.report(events.Event{
		Kind:     events.ExecutionFinished,
		Context:  events.ContextApp,
		Stage:    string(stage),
		Level:    summary.Level(),
		Duration: summary.Duration,
		Details: map[string]any{
			"succeeded": summary.Succeeded,
			"skipped":   summary.Skipped,
			"failed":    summary.Failed,
		},
	})
	logger.Info("🏁 Stage finished.", "stage", stage,
		"succeeded", len(summary.Succeeded), "skipped", len(summary.Skipped), "failed", len(summary.Failed))
	return summary
}

// cancelRemaining ends every wrapper that is not yet terminal. Tasks outside
// the query become NOT_IN_QUERY and stay silent.
func (r *Run) cancelRemaining(ctx context.Context, stage task.Stage, wrappers []*task.Wrapper, cause error) {
	ctxlog.FromContext(ctx).Warn("Stopping run, skipping remaining tasks.", "stage", stage, "remaining", len(wrappers), "error", cause)
	for _, w := range wrappers {
		if w.Status().Terminal() {
			continue
		}
		w.Cancel(cause)
		if w.InQuery() {
			r.reportTaskFinish(w, stage)
		}
	}
}

func (r *Run) report(e events.Event) {
	e.RunID = r.opts.RunID
	if e.Time.IsZero() {
		e.Time = r.now()
	}
	r.opts.Sink.Report(e)
}

func (r *Run) reportTaskStart(w *task.Wrapper, stage task.Stage) {
	r.report(events.Event{
		Kind:    events.StartTaskStage,
		Context: events.ContextTask,
		Stage:   string(stage),
		Level:   events.LevelInfo,
		Task:    w.Name(),
		Status:  w.Status().String(),
	})
}

func (r *Run) reportTaskFinish(w *task.Wrapper, stage task.Stage) {
	e := events.Event{
		Kind:    events.FinishTaskStage,
		Context: events.ContextTask,
		Stage:   string(stage),
		Level:   levelOf(w.Status()),
		Task:    w.Name(),
		Status:  w.Status().String(),
	}
	if t, ok := w.Timing(stage); ok {
		e.Duration = t.Duration()
	}
	if err := w.Err(); err != nil {
		e.Err = err
	}
	r.report(e)
}

func levelOf(s task.Status) events.Level {
	switch s {
	case task.Ready, task.Succeeded:
		return events.LevelSuccess
	case task.Skipped, task.NotInQuery:
		return events.LevelWarning
	case task.SetupFailed, task.Failed:
		return events.LevelError
	default:
		return events.LevelInfo
	}
}
