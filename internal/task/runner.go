package task

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/vk/taskgrid/internal/catalog"
	"github.com/vk/taskgrid/internal/database"
	"github.com/vk/taskgrid/internal/params"
	"github.com/vk/taskgrid/internal/tmpl"
)

// Runner is implemented by every task kind. Setup receives the compiled
// properties of the task; Compile and Run perform the stage's work.
type Runner interface {
	Setup(ctx context.Context, env *Env, properties map[string]any) Result
	Compile(ctx context.Context) Result
	Run(ctx context.Context) Result
}

// Resolver constructs the runner for a task definition.
type Resolver interface {
	ResolveRunner(td *catalog.TaskDefinition) (Runner, *Error)
}

// Folders locates the files runners read and write.
type Folders struct {
	SQL     string
	Compile string
}

// Env is everything a runner may use. The run-wide fields are shared by
// all tasks; the task fields are filled in per wrapper.
type Env struct {
	// Run-wide.
	ProjectParameters map[string]any
	Vars              params.RunVars
	Renderer          tmpl.Renderer
	DB                *database.Pool
	DefaultDB         string
	FS                afero.Fs
	Folders           Folders

	// Per task.
	Name       string
	Dag        string
	Tags       []string
	Parameters map[string]any
	Scope      map[string]any
	Logger     *slog.Logger
}

// forTask returns a copy of the run-wide env bound to one task.
func (e Env) forTask(td *catalog.TaskDefinition, compiled *params.Compiled, logger *slog.Logger) *Env {
	e.Name = td.Name
	e.Dag = td.Dag
	e.Tags = td.Tags
	e.Parameters = compiled.Parameters
	e.Scope = compiled.Scope
	e.Logger = logger
	if e.FS == nil {
		e.FS = afero.NewOsFs()
	}
	return &e
}

// Log returns the task logger, or the default logger for an unbound env.
func (e *Env) Log() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

// Render renders text against the task's scope.
func (e *Env) Render(text string) (string, error) {
	if e.Renderer == nil {
		return text, nil
	}
	return e.Renderer.Render(text, e.Scope)
}

// ReadSQL reads and renders a file from the SQL folder.
func (e *Env) ReadSQL(fileName string) (string, error) {
	path := filepath.Join(e.Folders.SQL, fileName)
	raw, err := afero.ReadFile(e.FS, path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	out, err := e.Render(string(raw))
	if err != nil {
		return "", fmt.Errorf("failed to render %s: %w", path, err)
	}
	return out, nil
}

// CompiledPath is where a task's compiled artifact with the given name is
// written: <compile folder>/<dag>/<name>.
func (e *Env) CompiledPath(name string) string {
	return filepath.Join(e.Folders.Compile, e.Dag, name)
}

// WriteCompiled writes a compiled artifact, creating directories as needed.
func (e *Env) WriteCompiled(name, content string) (string, error) {
	path := e.CompiledPath(name)
	if err := e.FS.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	if err := afero.WriteFile(e.FS, path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// Database returns the named connection, falling back to the default one.
func (e *Env) Database(name string) (*database.DB, error) {
	if name == "" {
		name = e.DefaultDB
	}
	if name == "" {
		return nil, fmt.Errorf("no database given and no default_db configured")
	}
	return e.DB.Get(name)
}
