package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/events"
	"github.com/vk/taskgrid/internal/registry"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	ctx        context.Context
	outW       io.Writer
	logger     *slog.Logger
	logFile    io.Closer
	config     *Config
	registry   *registry.Registry
	classes    *registry.Classes
	metrics    *prometheus.Registry
	sink       events.Sink
	runID      string
	httpServer *http.Server
}

// NewApp is the constructor for the main application. Console output goes to
// outW and logs to logW. It returns a fully initialized App instance,
// including its own isolated logger, registry and metrics registry. With no
// modules given, the core modules are registered.
func NewApp(outW, logW io.Writer, cfg *Config, modules ...registry.Module) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, logW)
	var logFile io.Closer
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		logger = newTeeLogger(logger, f)
		logFile = f
	}

	runID := uuid.NewString()
	logger = logger.With("run_id", runID)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	classes := registry.NewClasses()
	reg := registry.New(classes)
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All Go modules registered.", "count", len(modules), "types", reg.Types())

	metrics := prometheus.NewRegistry()
	metrics.MustRegister(collectors.NewGoCollector())

	sink := events.NewMulti(
		events.NewLogger(logger),
		events.NewMetrics(metrics),
		events.NewConsole(outW, cfg.NoColor, cfg.Debug),
	)

	return &App{
		ctx:      ctx,
		outW:     outW,
		logger:   logger,
		logFile:  logFile,
		config:   cfg,
		registry: reg,
		classes:  classes,
		metrics:  metrics,
		sink:     sink,
		runID:    runID,
	}, nil
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Classes returns the table external runners are resolved from. Embedding
// applications register their classes here before Run.
func (a *App) Classes() *registry.Classes {
	return a.classes
}

// RunID identifies this invocation on every event.
func (a *App) RunID() string {
	return a.runID
}

// Close releases the log file, if any.
func (a *App) Close() error {
	if a.logFile == nil {
		return nil
	}
	return a.logFile.Close()
}
