package query

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/taskgrid/internal/catalog"
	"github.com/vk/taskgrid/internal/dag"
)

// fixtureCatalog is a catalog of 7 tasks across 3 dags.
func fixtureCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c := catalog.New()
	for _, td := range []*catalog.TaskDefinition{
		{Name: "task1", Dag: "dag1"},
		{Name: "task2", Dag: "dag1", Tags: []string{"tag1"}},
		{Name: "task3", Dag: "dag2", Tags: []string{"tag1"}},
		{Name: "task4", Dag: "dag2"},
		{Name: "task5", Dag: "dag3", Tags: []string{"tag1", "tag2"}},
		{Name: "task6", Dag: "dag3"},
		{Name: "task7", Dag: "dag3"},
	} {
		require.NoError(t, c.Add(td))
	}
	return c
}

func inc(task string, up, down bool) Operation {
	return Operation{Kind: Include, Task: task, Upstream: up, Downstream: down}
}

func exc(task string, up, down bool) Operation {
	return Operation{Kind: Exclude, Task: task, Upstream: up, Downstream: down}
}

func TestResolve(t *testing.T) {
	t.Parallel()
	c := fixtureCatalog(t)

	tests := []struct {
		name    string
		include []string
		exclude []string
		want    []Operation
	}{
		{
			name:    "single task",
			include: []string{"task1"},
			want:    []Operation{inc("task1", false, false)},
		},
		{
			name:    "downstream",
			include: []string{"task2+"},
			want:    []Operation{inc("task2", false, true)},
		},
		{
			name:    "both closures",
			include: []string{"+task4+"},
			want:    []Operation{inc("task4", true, true)},
		},
		{
			name:    "dag macro",
			include: []string{"dag:dag1"},
			want:    []Operation{inc("task1", false, false), inc("task2", false, false)},
		},
		{
			name:    "tag macro",
			include: []string{"tag:tag1"},
			want: []Operation{
				inc("task2", false, false),
				inc("task3", false, false),
				inc("task5", false, false),
			},
		},
		{
			name:    "macro inherits flags",
			include: []string{"+dag:dag2+"},
			want:    []Operation{inc("task3", true, true), inc("task4", true, true)},
		},
		{
			name:    "include then exclude",
			include: []string{"tag:tag1"},
			exclude: []string{"dag:dag2"},
			want: []Operation{
				inc("task2", false, false),
				inc("task3", false, false),
				inc("task5", false, false),
				exc("task3", false, false),
				exc("task4", false, false),
			},
		},
		{
			name:    "full query",
			include: []string{"task1", "task2+", "tag:tag1", "+task2"},
			exclude: []string{"dag:dag3", "+task3"},
			want: []Operation{
				inc("task1", false, false),
				inc("task2", false, true),
				inc("task3", false, false),
				inc("task5", false, false),
				exc("task5", false, false),
				exc("task6", false, false),
				exc("task7", false, false),
				exc("task3", true, false),
			},
		},
		{
			name:    "exclude only",
			exclude: []string{"task7"},
			want:    []Operation{exc("task7", false, false)},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Resolve(c, tt.include, tt.exclude)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Resolve() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResolve_Errors(t *testing.T) {
	t.Parallel()
	c := fixtureCatalog(t)

	tests := []struct {
		name    string
		include []string
		exclude []string
		kind    error
		token   string
	}{
		{name: "unknown task", include: []string{"task_undefined"}, kind: ErrUnknownSelector, token: "task_undefined"},
		{name: "unknown task with closure", include: []string{"+_task_undefined"}, kind: ErrUnknownSelector, token: "+_task_undefined"},
		{name: "unknown tag", include: []string{"tag:tag_undefined"}, kind: ErrUnknownSelector, token: "tag:tag_undefined"},
		{name: "unknown dag", include: []string{"dag:dag_undefined"}, kind: ErrUnknownSelector, token: "dag:dag_undefined"},
		{name: "unknown in exclude", include: []string{"task1"}, exclude: []string{"nope"}, kind: ErrUnknownSelector, token: "nope"},
		{name: "bare plus", include: []string{"+"}, kind: ErrMalformedSelector, token: "+"},
		{name: "empty tag", include: []string{"tag:"}, kind: ErrMalformedSelector, token: "tag:"},
		{name: "double plus", include: []string{"++task1"}, kind: ErrMalformedSelector, token: "++task1"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ops, err := Resolve(c, tt.include, tt.exclude)
			require.Error(t, err)
			assert.Nil(t, ops, "no partial result on error")
			assert.True(t, errors.Is(err, tt.kind))

			var qerr *Error
			require.True(t, errors.As(err, &qerr))
			assert.Equal(t, tt.token, qerr.Token)
		})
	}
}

func TestSelect(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// task1 -> task2 -> task3 -> task4, task5 -> task6, task7 isolated
	c := catalog.New()
	for _, td := range []*catalog.TaskDefinition{
		{Name: "task1", Dag: "dag1"},
		{Name: "task2", Dag: "dag1", Parents: []string{"task1"}},
		{Name: "task3", Dag: "dag2", Parents: []string{"task2"}},
		{Name: "task4", Dag: "dag2", Parents: []string{"task3"}},
		{Name: "task5", Dag: "dag3"},
		{Name: "task6", Dag: "dag3", Parents: []string{"task5"}},
		{Name: "task7", Dag: "dag3"},
	} {
		require.NoError(t, c.Add(td))
	}
	g, err := dag.Build(context.Background(), c.Nodes())
	require.NoError(t, err)

	resolveSelect := func(include, exclude []string) []string {
		ops, err := Resolve(c, include, exclude)
		require.NoError(t, err)
		return Select(ops, g).Names()
	}

	// --- Act & Assert ---
	t.Run("no operations selects everything", func(t *testing.T) {
		assert.Equal(t, g.Names(), resolveSelect(nil, nil))
	})

	t.Run("exclude only starts from everything", func(t *testing.T) {
		assert.Equal(t, []string{"task1", "task2", "task5", "task6", "task7"}, resolveSelect(nil, []string{"task3+"}))
	})

	t.Run("upstream closure", func(t *testing.T) {
		assert.Equal(t, []string{"task1", "task2", "task3"}, resolveSelect([]string{"+task3"}, nil))
	})

	t.Run("downstream closure", func(t *testing.T) {
		assert.Equal(t, []string{"task2", "task3", "task4"}, resolveSelect([]string{"task2+"}, nil))
	})

	t.Run("exclude closure is computed over the graph", func(t *testing.T) {
		// task1 is not selected, but excluding +task2 still removes it and task2.
		got := resolveSelect([]string{"task3+", "dag:dag3"}, []string{"+task2"})
		assert.Equal(t, []string{"task3", "task4", "task5", "task6", "task7"}, got)
	})

	t.Run("later exclude is decisive", func(t *testing.T) {
		sel := func() *Selection {
			ops, err := Resolve(c, []string{"dag:dag3"}, []string{"task6"})
			require.NoError(t, err)
			return Select(ops, g)
		}()
		assert.False(t, sel.Contains("task6"))
		assert.True(t, sel.Contains("task5"))
		assert.Equal(t, 2, sel.Len())
	})
}

func TestSplit(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"a", "tag:b", "+c+"}, Split([]string{"a tag:b", "  +c+ "}))
	assert.Empty(t, Split(nil))
}

func TestOperation_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "include +task1+", inc("task1", true, true).String())
	assert.Equal(t, "exclude task2", exc("task2", false, false).String())
}
