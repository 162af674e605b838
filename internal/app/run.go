package app

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/vk/taskgrid/internal/config"
	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/dag"
	"github.com/vk/taskgrid/internal/database"
	"github.com/vk/taskgrid/internal/events"
	"github.com/vk/taskgrid/internal/orchestrator"
	"github.com/vk/taskgrid/internal/params"
	"github.com/vk/taskgrid/internal/query"
	"github.com/vk/taskgrid/internal/task"
	"github.com/vk/taskgrid/internal/tmpl"
)

// Run executes the configured stage over the project. It returns the
// execution summary; an error means the run could not start.
func (a *App) Run(ctx context.Context) (*orchestrator.Summary, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.ctx = ctx
	cfg := a.config
	a.logger.Debug("App.Run method started.")

	a.healthCheckServer()
	defer a.closeHealthCheckServer()

	a.sink.Report(events.Event{
		RunID:   a.runID,
		Kind:    events.StartApp,
		Context: events.ContextApp,
		Level:   events.LevelInfo,
		Details: map[string]any{
			"project_dir": cfg.ProjectDir,
			"stage":       string(cfg.Stage),
			"profile":     cfg.Profile,
			"start_dt":    cfg.Vars.StartDt.Format(params.DateLayout),
			"end_dt":      cfg.Vars.EndDt.Format(params.DateLayout),
			"full_load":   cfg.Vars.FullLoad,
			"fail_fast":   cfg.FailFast,
		},
	})

	loaded, err := config.Load(ctx, cfg.FS, cfg.ProjectDir, cfg.Environ, cfg.Profile)
	if err != nil {
		return nil, err
	}
	renderer, err := tmpl.New(loaded.Project.TemplateEngine)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrConfig, err)
	}

	a.logger.Debug("Building dependency graph from the catalog...")
	graph, err := dag.Build(ctx, loaded.Catalog.Nodes())
	if err != nil {
		return nil, fmt.Errorf("failed to build dependency graph: %w", err)
	}

	ops, err := query.Resolve(loaded.Catalog, query.Split(cfg.Include), query.Split(cfg.Exclude))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve task query: %w", err)
	}
	for _, op := range ops {
		a.logger.Debug("Query operation.", "op", op.String())
	}
	selection := query.Select(ops, graph)
	a.logger.Info("Tasks selected.", "selected", selection.Len(), "total", graph.Len())
	if selection.Len() == 0 {
		a.logger.Warn("No tasks selected, execution not required.")
	}

	pool, err := database.Open(ctx, loaded.Resolved.Credentials)
	if err != nil {
		return nil, err
	}
	defer pool.Close()
	for _, name := range pool.Names() {
		db, _ := pool.Get(name)
		if err := a.metrics.Register(collectors.NewDBStatsCollector(db.DB, name)); err != nil {
			a.logger.Debug("Database stats not registered.", "db", name, "error", err)
		}
	}

	env := task.Env{
		ProjectParameters: loaded.Resolved.Parameters,
		Vars:              cfg.Vars,
		Renderer:          renderer,
		DB:                pool,
		DefaultDB:         loaded.Project.DefaultDB,
		FS:                cfg.FS,
		Folders: task.Folders{
			SQL:     filepath.Join(cfg.ProjectDir, loaded.Project.Folders.SQL),
			Compile: filepath.Join(cfg.ProjectDir, loaded.Project.Folders.Compile),
		},
	}
	run, err := orchestrator.New(loaded.Catalog, graph, selection, orchestrator.Options{
		Compiler: params.NewCompiler(renderer, loaded.Resolved.Parameters, cfg.Vars),
		Resolver: a.registry,
		Env:      env,
		Sink:     a.sink,
		RunID:    a.runID,
		FailFast: cfg.FailFast,
	})
	if err != nil {
		return nil, err
	}

	summary, err := run.Start(ctx, cfg.Stage)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("App.Run method finished.")
	return summary, nil
}
