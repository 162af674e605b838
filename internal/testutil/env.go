package testutil

import (
	"context"
	"log/slog"
	"path"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/vk/taskgrid/internal/database"
	"github.com/vk/taskgrid/internal/task"
	"github.com/vk/taskgrid/internal/tmpl"
)

// NewEnv returns the env of a task "t" in dag "d", backed by an in-memory
// filesystem holding files in its SQL folder. The scope is rendered with HCL.
func NewEnv(t testing.TB, pool *database.Pool, scope map[string]any, files map[string]string) *task.Env {
	t.Helper()
	fs := afero.NewMemMapFs()
	folders := task.Folders{SQL: "sql", Compile: "compile"}
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, path.Join(folders.SQL, name), []byte(content), 0o644))
	}
	return &task.Env{
		Renderer:  tmpl.NewHCL(),
		DB:        pool,
		DefaultDB: "warehouse",
		FS:        fs,
		Folders:   folders,
		Name:      "t",
		Dag:       "d",
		Scope:     scope,
		Logger:    slog.New(slog.NewTextHandler(&SafeBuffer{}, nil)),
	}
}

// SQLitePool opens a pool of in-memory SQLite databases, one per name, and
// closes it when the test ends.
func SQLitePool(t testing.TB, names ...string) *database.Pool {
	t.Helper()
	creds := make(map[string]map[string]any, len(names))
	for _, n := range names {
		creds[n] = map[string]any{"type": database.TypeSQLite}
	}
	pool, err := database.Open(context.Background(), creds)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	return pool
}

// ReadCompiled returns a compiled artifact of the env's task.
func ReadCompiled(t testing.TB, env *task.Env, name string) string {
	t.Helper()
	raw, err := afero.ReadFile(env.FS, env.CompiledPath(name))
	require.NoError(t, err)
	return string(raw)
}
