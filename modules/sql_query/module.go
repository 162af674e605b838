package sql_query

import (
	"context"
	"fmt"

	"github.com/vk/taskgrid/internal/database"
	"github.com/vk/taskgrid/internal/registry"
	"github.com/vk/taskgrid/internal/task"
)

// Type is the task type handled by this module.
const Type = "sql"

// Module implements the registry.Module interface for this package.
type Module struct{}

// Config holds the properties of a sql task.
type Config struct {
	FileName string `mapstructure:"file_name"`
	DB       string `mapstructure:"db"`
}

// Runner renders a SQL file and executes it on one database.
type Runner struct {
	env   *task.Env
	cfg   Config
	db    *database.DB
	query string
}

func (r *Runner) Setup(ctx context.Context, env *task.Env, properties map[string]any) task.Result {
	r.env = env
	if err := task.DecodeProperties(properties, &r.cfg); err != nil {
		return task.InvalidProperties(err)
	}
	if r.cfg.FileName == "" {
		return task.InvalidProperties(fmt.Errorf("file_name is required"))
	}

	db, err := env.Database(r.cfg.DB)
	if err != nil {
		return task.Fail(task.KindDefinition, "db_not_in_settings", map[string]any{"db": r.cfg.DB})
	}
	r.db = db

	query, err := env.ReadSQL(r.cfg.FileName)
	if err != nil {
		return task.FromError(task.KindSetup, "sql_file", err)
	}
	r.query = query
	return task.Ok()
}

func (r *Runner) Compile(ctx context.Context) task.Result {
	path, err := r.env.WriteCompiled(r.env.Name+".sql", r.query)
	if err != nil {
		return task.FromError(task.KindException, "write_compiled", err)
	}
	r.env.Log().Debug("Compiled query written.", "path", path)
	return task.Ok()
}

func (r *Runner) Run(ctx context.Context) task.Result {
	if res := r.Compile(ctx); !res.IsOk() {
		return res
	}
	if _, err := r.db.ExecContext(ctx, r.query); err != nil {
		return task.FromError(task.KindException, "sql_error", fmt.Errorf("%s: %w", r.db.Name, err))
	}
	r.env.Log().Info("▶️ Query executed.", "db", r.db.Name)
	return task.Ok()
}

// Register registers the runner with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner(Type, func() task.Runner { return &Runner{} })
}
