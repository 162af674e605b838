package app

import (
	"errors"
	"fmt"

	"github.com/spf13/afero"

	"github.com/vk/taskgrid/internal/params"
	"github.com/vk/taskgrid/internal/task"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ProjectDir string
	Stage      task.Stage
	Include    []string
	Exclude    []string
	Profile    string
	Vars       params.RunVars
	// Environ holds KEY=VALUE pairs scanned for parameter and credential
	// overrides.
	Environ []string

	Debug       bool
	NoColor     bool
	LogFormat   string
	LogLevel    string
	LogFile     string
	MetricsPort int
	// FailFast stops the run at the first failed task.
	FailFast bool

	// FS is the filesystem the project is read from and compiled into.
	// Defaults to the OS filesystem.
	FS afero.Fs
}

// ErrInvalidWindow is returned for a start date after the end date.
var ErrInvalidWindow = errors.New("invalid reporting window")

func NewConfig(cfg Config) (*Config, error) {
	if cfg.ProjectDir == "" {
		cfg.ProjectDir = "."
	}
	if _, err := task.ParseStage(string(cfg.Stage)); err != nil {
		return nil, err
	}
	if err := cfg.Vars.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWindow, err)
	}
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	if cfg.FS == nil {
		cfg.FS = afero.NewOsFs()
	}
	return &cfg, nil
}
