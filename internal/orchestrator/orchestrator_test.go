package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/vk/taskgrid/internal/catalog"
	"github.com/vk/taskgrid/internal/dag"
	"github.com/vk/taskgrid/internal/events"
	"github.com/vk/taskgrid/internal/params"
	"github.com/vk/taskgrid/internal/query"
	"github.com/vk/taskgrid/internal/task"
	"github.com/vk/taskgrid/internal/testutil"
	"github.com/vk/taskgrid/internal/tmpl"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	catalog  *catalog.Catalog
	graph    *dag.Graph
	resolver *testutil.FakeResolver
	recorder *testutil.Recorder
	failFast bool
}

func newFixture(t *testing.T, defs ...*catalog.TaskDefinition) *fixture {
	t.Helper()
	c := catalog.New()
	for _, td := range defs {
		require.NoError(t, c.Add(td))
	}
	g, err := dag.Build(context.Background(), c.Nodes())
	require.NoError(t, err)
	return &fixture{
		catalog:  c,
		graph:    g,
		resolver: &testutil.FakeResolver{Runners: map[string]*testutil.FakeRunner{}},
		recorder: &testutil.Recorder{},
	}
}

func (f *fixture) run(t *testing.T, include, exclude []string) *Run {
	t.Helper()
	ops, err := query.Resolve(f.catalog, include, exclude)
	require.NoError(t, err)
	vars := params.RunVars{StartDt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), EndDt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	r, err := New(f.catalog, f.graph, query.Select(ops, f.graph), Options{
		Compiler: params.NewCompiler(tmpl.NewHCL(), nil, vars),
		Resolver: f.resolver,
		Sink:     f.recorder,
		RunID:    "run-1",
		FailFast: f.failFast,
	})
	require.NoError(t, err)
	return r
}

func statuses(r *Run) map[string]task.Status {
	out := make(map[string]task.Status)
	for _, w := range r.Table().Wrappers() {
		out[w.Name()] = w.Status()
	}
	return out
}

func failing() task.Result { return task.Fail("test", "boom", nil) }

func TestRun_SetupFailurePropagates(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// A <- B <- C, B fails during setup.
	f := newFixture(t,
		&catalog.TaskDefinition{Name: "A"},
		&catalog.TaskDefinition{Name: "B", Parents: []string{"A"}},
		&catalog.TaskDefinition{Name: "C", Parents: []string{"B"}},
	)
	f.resolver.Runners["B"] = &testutil.FakeRunner{SetupFn: func(*task.Env, map[string]any) task.Result { return failing() }}
	r := f.run(t, nil, nil)

	// --- Act ---
	summary, err := r.Start(context.Background(), task.StageRun)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, map[string]task.Status{"A": task.Succeeded, "B": task.SetupFailed, "C": task.Skipped}, statuses(r))
	assert.Equal(t, []string{"A"}, summary.Succeeded)
	assert.Equal(t, []string{"B"}, summary.Failed)
	assert.Equal(t, []string{"C"}, summary.Skipped)
	assert.Equal(t, events.LevelFailed, summary.Level())
	assert.False(t, summary.OK())
	assert.NotContains(t, f.resolver.Constructed(), "C")

	finished, ok := f.recorder.Last(events.ExecutionFinished)
	require.True(t, ok)
	assert.Equal(t, events.LevelFailed, finished.Level)
	assert.Equal(t, "run-1", finished.RunID)
	assert.Equal(t, []string{"A"}, finished.Details["succeeded"])
}

func TestRun_ExecutionFailurePropagates(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// A <- B, A <- C, D independent. A fails while running.
	f := newFixture(t,
		&catalog.TaskDefinition{Name: "A"},
		&catalog.TaskDefinition{Name: "B", Parents: []string{"A"}},
		&catalog.TaskDefinition{Name: "C", Parents: []string{"A"}},
		&catalog.TaskDefinition{Name: "D"},
	)
	f.resolver.Runners["A"] = &testutil.FakeRunner{RunFn: failing}
	r := f.run(t, nil, nil)

	// --- Act ---
	summary, err := r.Start(context.Background(), task.StageRun)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, map[string]task.Status{
		"A": task.Failed, "B": task.Skipped, "C": task.Skipped, "D": task.Succeeded,
	}, statuses(r))
	assert.Equal(t, []string{"D"}, summary.Succeeded)
	assert.Equal(t, []string{"B", "C"}, summary.Skipped)
	assert.Equal(t, []string{"A"}, summary.Failed)
	assert.Equal(t, []string{"setup"}, f.resolver.Runners["B"].Calls(), "B was set up but never ran")
}

func TestRun_NotInQueryParentDoesNotBlock(t *testing.T) {
	t.Parallel()

	f := newFixture(t,
		&catalog.TaskDefinition{Name: "A"},
		&catalog.TaskDefinition{Name: "B", Parents: []string{"A"}},
	)
	r := f.run(t, []string{"B"}, nil)

	summary, err := r.Start(context.Background(), task.StageCompile)

	require.NoError(t, err)
	assert.Equal(t, map[string]task.Status{"A": task.NotInQuery, "B": task.Succeeded}, statuses(r))
	assert.Equal(t, []string{"B"}, f.resolver.Constructed())
	assert.Equal(t, []string{"setup", "compile"}, f.resolver.Runners["B"].Calls())
	assert.True(t, summary.OK())
	assert.Equal(t, task.StageCompile, summary.Stage)
}

func TestRun_StagesAreSequencedAcrossTheGraph(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	var calls []string
	track := func(name, stage string) *testutil.FakeRunner {
		return &testutil.FakeRunner{
			SetupFn: func(*task.Env, map[string]any) task.Result { calls = append(calls, name+":"+"setup"); return task.Ok() },
			RunFn:   func() task.Result { calls = append(calls, name+":"+stage); return task.Ok() },
		}
	}
	f := newFixture(t,
		&catalog.TaskDefinition{Name: "b", Parents: []string{"a"}},
		&catalog.TaskDefinition{Name: "a"},
	)
	f.resolver.Runners["a"] = track("a", "run")
	f.resolver.Runners["b"] = track("b", "run")

	// --- Act ---
	_, err := f.run(t, nil, nil).Start(context.Background(), task.StageRun)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, []string{"a:setup", "b:setup", "a:run", "b:run"}, calls)
}

func TestRun_Cancellation(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t,
		&catalog.TaskDefinition{Name: "a"},
		&catalog.TaskDefinition{Name: "b"},
		&catalog.TaskDefinition{Name: "c"},
	)
	f.resolver.Runners["a"] = &testutil.FakeRunner{RunFn: func() task.Result { cancel(); return task.Ok() }}
	r := f.run(t, nil, nil)

	// --- Act ---
	summary, err := r.Start(ctx, task.StageRun)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, summary.Succeeded)
	assert.Equal(t, []string{"b", "c"}, summary.Skipped)
	w, _ := r.Table().Get("b")
	require.NotNil(t, w.Err())
	assert.Equal(t, task.KindCancelled, w.Err().Kind)
	assert.Equal(t, []string{"setup"}, f.resolver.Runners["b"].Calls())
}

func TestRun_CancelledDuringSetup(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t,
		&catalog.TaskDefinition{Name: "a"},
		&catalog.TaskDefinition{Name: "b"},
		&catalog.TaskDefinition{Name: "c"},
	)
	f.resolver.Runners["a"] = &testutil.FakeRunner{SetupFn: func(*task.Env, map[string]any) task.Result { cancel(); return task.Ok() }}
	r := f.run(t, []string{"a", "b"}, nil)

	// --- Act ---
	summary, err := r.Start(ctx, task.StageRun)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, map[string]task.Status{"a": task.Skipped, "b": task.Skipped, "c": task.NotInQuery}, statuses(r))
	assert.Equal(t, []string{"a", "b"}, summary.Skipped)
	for _, w := range r.Table().Wrappers() {
		assert.True(t, w.Status().Terminal(), "%s ends terminal", w.Name())
	}
}

func TestRun_FailFast(t *testing.T) {
	t.Parallel()

	t.Run("execution failure skips the rest", func(t *testing.T) {
		t.Parallel()

		// --- Arrange ---
		// A fails while running; B does not depend on A.
		f := newFixture(t,
			&catalog.TaskDefinition{Name: "A"},
			&catalog.TaskDefinition{Name: "B"},
		)
		f.failFast = true
		f.resolver.Runners["A"] = &testutil.FakeRunner{RunFn: failing}
		r := f.run(t, nil, nil)

		// --- Act ---
		summary, err := r.Start(context.Background(), task.StageRun)

		// --- Assert ---
		require.NoError(t, err)
		assert.Equal(t, map[string]task.Status{"A": task.Failed, "B": task.Skipped}, statuses(r))
		assert.Equal(t, []string{"A"}, summary.Failed)
		assert.Equal(t, []string{"B"}, summary.Skipped)
		b, _ := r.Table().Get("B")
		require.NotNil(t, b.Err())
		assert.Equal(t, task.KindCancelled, b.Err().Kind)
		assert.ErrorIs(t, b.Err(), ErrFailFast)
		assert.Equal(t, []string{"setup"}, f.resolver.Runners["B"].Calls())
	})

	t.Run("setup failure stops setup", func(t *testing.T) {
		t.Parallel()

		// --- Arrange ---
		f := newFixture(t,
			&catalog.TaskDefinition{Name: "A"},
			&catalog.TaskDefinition{Name: "B"},
			&catalog.TaskDefinition{Name: "C"},
		)
		f.failFast = true
		f.resolver.Runners["A"] = &testutil.FakeRunner{SetupFn: func(*task.Env, map[string]any) task.Result { return failing() }}
		r := f.run(t, []string{"A", "B"}, nil)

		// --- Act ---
		summary, err := r.Start(context.Background(), task.StageCompile)

		// --- Assert ---
		require.NoError(t, err)
		assert.Equal(t, map[string]task.Status{"A": task.SetupFailed, "B": task.Skipped, "C": task.NotInQuery}, statuses(r))
		assert.Equal(t, []string{"A"}, summary.Failed)
		assert.Equal(t, []string{"B"}, summary.Skipped)
		assert.Equal(t, []string{"A"}, f.resolver.Constructed())
	})

	t.Run("disabled keeps independent tasks running", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t,
			&catalog.TaskDefinition{Name: "A"},
			&catalog.TaskDefinition{Name: "B"},
		)
		f.resolver.Runners["A"] = &testutil.FakeRunner{RunFn: failing}

		summary, err := f.run(t, nil, nil).Start(context.Background(), task.StageRun)

		require.NoError(t, err)
		assert.Equal(t, []string{"B"}, summary.Succeeded)
	})
}

func TestRun_Events(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &catalog.TaskDefinition{Name: "a"}, &catalog.TaskDefinition{Name: "b"})
	_, err := f.run(t, []string{"a"}, nil).Start(context.Background(), task.StageRun)
	require.NoError(t, err)

	assert.Equal(t, []events.Kind{
		events.StartStage,
		events.StartTaskStage, events.FinishTaskStage,
		events.FinishStage,
		events.StartStage,
		events.StartTaskStage, events.FinishTaskStage,
		events.FinishStage,
		events.ExecutionFinished,
	}, f.recorder.Kinds())

	for _, e := range f.recorder.Events() {
		if e.Context == events.ContextTask {
			assert.Equal(t, "a", e.Task, "tasks outside the query emit no events")
		}
	}
	finished, _ := f.recorder.Last(events.ExecutionFinished)
	assert.Equal(t, events.LevelSuccess, finished.Level)
}

func TestRun_WarningLevel(t *testing.T) {
	t.Parallel()

	f := newFixture(t,
		&catalog.TaskDefinition{Name: "a"},
		&catalog.TaskDefinition{Name: "b", Parents: []string{"a"}},
	)
	r := f.run(t, nil, nil)
	r.Setup(context.Background())
	a, _ := r.Table().Get("a")
	a.Cancel(context.Canceled)

	summary := r.Execute(context.Background(), task.StageRun)

	assert.Equal(t, events.LevelWarning, summary.Level())
	assert.Equal(t, []string{"a", "b"}, summary.Skipped)
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &catalog.TaskDefinition{Name: "a"})
	_, err := New(f.catalog, f.graph, query.Select(nil, f.graph), Options{})
	assert.Error(t, err)

	r := f.run(t, nil, nil)
	_, err = r.Start(context.Background(), task.StageSetup)
	assert.Error(t, err)
}
