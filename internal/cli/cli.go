package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vk/taskgrid/internal/app"
	"github.com/vk/taskgrid/internal/orchestrator"
	"github.com/vk/taskgrid/internal/params"
	"github.com/vk/taskgrid/internal/task"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// flags are the options shared by every stage command.
type flags struct {
	tasks       []string
	exclude     []string
	profile     string
	fullLoad    bool
	startDt     string
	endDt       string
	debug       bool
	failFast    bool
	noColor     bool
	logLevel    string
	logFormat   string
	logFile     string
	metricsPort int
	projectDir  string
}

// Parse processes command-line arguments. It returns a populated app config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
// now anchors the default reporting window: end_dt defaults to the day
// before now and start_dt to end_dt.
func Parse(args []string, output io.Writer, now time.Time) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	var (
		f      flags
		config *app.Config
	)

	root := &cobra.Command{
		Use:   "taskgrid",
		Short: "taskgrid: run a project of dependent SQL and data tasks",
		Long: `taskgrid loads the dags of a project, selects tasks with include and
exclude queries, and runs them in dependency order.

Selectors: <task>, tag:<tag>, dag:<dag>, with a leading "+" for upstream
and a trailing "+" for downstream tasks. Several selectors may be given in
one flag value separated by spaces.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.SetArgs(args)
	root.SetOut(output)
	root.SetErr(output)

	pf := root.PersistentFlags()
	pf.StringArrayVarP(&f.tasks, "tasks", "t", nil, "Task query to include. Repeatable.")
	pf.StringArrayVarP(&f.exclude, "exclude", "x", nil, "Task query to exclude. Repeatable.")
	pf.StringVarP(&f.profile, "profile", "p", "", "Profile from settings.yaml to use.")
	pf.BoolVarP(&f.fullLoad, "full-load", "f", false, "Do a full load of incremental tasks.")
	pf.StringVarP(&f.startDt, "start-dt", "s", "", "Start of the reporting window (YYYY-MM-DD). Defaults to end-dt.")
	pf.StringVarP(&f.endDt, "end-dt", "e", "", "End of the reporting window (YYYY-MM-DD). Defaults to yesterday.")
	pf.BoolVarP(&f.debug, "debug", "d", false, "Print debug output.")
	pf.BoolVar(&f.failFast, "fail-fast", false, "Stop at the first failed task and skip the rest.")
	pf.BoolVar(&f.noColor, "no-color", false, "Disable colored console output.")
	pf.StringVar(&f.logLevel, "log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	pf.StringVar(&f.logFormat, "log-format", "text", "Log output format. Options: 'text' or 'json'.")
	pf.StringVar(&f.logFile, "log-file", "", "Also write JSON logs to this file.")
	pf.IntVar(&f.metricsPort, "metrics-port", 0, "Port for the /health and /metrics HTTP server. 0 is disabled.")
	pf.StringVar(&f.projectDir, "project-dir", ".", "Path to the project directory.")

	for _, stage := range []task.Stage{task.StageRun, task.StageCompile} {
		stage := stage
		root.AddCommand(&cobra.Command{
			Use:   string(stage),
			Short: stageHelp[stage],
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := f.config(stage, now)
				if err != nil {
					return err
				}
				config = cfg
				return nil
			},
		})
	}

	if err := root.Execute(); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return nil, false, exitErr
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	if config == nil {
		// Help was printed.
		return nil, true, nil
	}

	slog.Debug("CLI parser finished successfully.", "stage", config.Stage, "project_dir", config.ProjectDir)
	return config, false, nil
}

var stageHelp = map[task.Stage]string{
	task.StageRun:     "Set up, compile and execute the selected tasks",
	task.StageCompile: "Set up the selected tasks and write their compiled output without executing",
}

func (f *flags) config(stage task.Stage, now time.Time) (*app.Config, error) {
	logFormat := strings.ToLower(f.logFormat)
	if logFormat != "text" && logFormat != "json" {
		return nil, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(f.logLevel)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	vars, err := f.runVars(now)
	if err != nil {
		return nil, err
	}

	cfg, err := app.NewConfig(app.Config{
		ProjectDir:  f.projectDir,
		Stage:       stage,
		Include:     f.tasks,
		Exclude:     f.exclude,
		Profile:     f.profile,
		Vars:        vars,
		Debug:       f.debug,
		FailFast:    f.failFast,
		NoColor:     f.noColor,
		LogFormat:   logFormat,
		LogLevel:    logLevel,
		LogFile:     f.logFile,
		MetricsPort: f.metricsPort,
	})
	if err != nil {
		return nil, &ExitError{Code: 2, Message: err.Error()}
	}
	return cfg, nil
}

func (f *flags) runVars(now time.Time) (params.RunVars, error) {
	y, m, d := now.AddDate(0, 0, -1).Date()
	end := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	if f.endDt != "" {
		t, err := time.Parse(params.DateLayout, f.endDt)
		if err != nil {
			return params.RunVars{}, &ExitError{Code: 2, Message: fmt.Sprintf("invalid end-dt %q: expected YYYY-MM-DD", f.endDt)}
		}
		end = t
	}
	start := end
	if f.startDt != "" {
		t, err := time.Parse(params.DateLayout, f.startDt)
		if err != nil {
			return params.RunVars{}, &ExitError{Code: 2, Message: fmt.Sprintf("invalid start-dt %q: expected YYYY-MM-DD", f.startDt)}
		}
		start = t
	}
	return params.RunVars{StartDt: start, EndDt: end, FullLoad: f.fullLoad}, nil
}

// Outcome converts an execution summary into the process result: failed
// or skipped tasks exit with code 1.
func Outcome(s *orchestrator.Summary) error {
	if s == nil || s.OK() {
		return nil
	}
	return &ExitError{
		Code:    1,
		Message: fmt.Sprintf("execution finished with %d failed and %d skipped tasks", len(s.Failed), len(s.Skipped)),
	}
}
