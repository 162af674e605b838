// Package autosql materialises the result of a templated SELECT as a table,
// a view or an incrementally maintained table.
package autosql

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/vk/taskgrid/internal/database"
	"github.com/vk/taskgrid/internal/registry"
	"github.com/vk/taskgrid/internal/task"
)

// Type is the task type handled by this module.
const Type = "autosql"

// Materialisations.
const (
	Table       = "table"
	View        = "view"
	Incremental = "incremental"
)

// tmpPrefix names the staging table of a load.
const tmpPrefix = "taskgrid_tmp_"

// Module implements the registry.Module interface for this package.
type Module struct{}

// Destination is where the query result is materialised.
type Destination struct {
	DB        string `mapstructure:"db"`
	Schema    string `mapstructure:"schema"`
	TmpSchema string `mapstructure:"tmp_schema"`
	Table     string `mapstructure:"table"`
}

// Column is one output column. A bare string in the properties is a column
// name without a type.
type Column struct {
	Name string `mapstructure:"name"`
	Type string `mapstructure:"type"`
}

// Config holds the properties of an autosql task.
type Config struct {
	FileName        string      `mapstructure:"file_name"`
	Materialisation string      `mapstructure:"materialisation"`
	DeleteKey       string      `mapstructure:"delete_key"`
	Destination     Destination `mapstructure:"destination"`
	Columns         []Column    `mapstructure:"columns"`
}

var columnType = reflect.TypeOf(Column{})

// columnHook accepts "name" as shorthand for {name: name}.
func columnHook(from, to reflect.Type, data any) (any, error) {
	if to == columnType && from.Kind() == reflect.String {
		return map[string]any{"name": data}, nil
	}
	return data, nil
}

// typed reports whether the columns carry their own DDL types.
func (c *Config) typed() bool {
	return len(c.Columns) > 0 && c.Columns[0].Type != ""
}

func (c *Config) validateColumns() error {
	if len(c.Columns) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(c.Columns))
	for i, col := range c.Columns {
		if col.Name == "" {
			return fmt.Errorf("columns[%d]: name is required", i)
		}
		if seen[col.Name] {
			return fmt.Errorf("column %q is listed twice", col.Name)
		}
		seen[col.Name] = true
		if (col.Type != "") != c.typed() {
			return fmt.Errorf("columns must either all declare a type or none")
		}
	}
	if c.DeleteKey != "" && !seen[c.DeleteKey] {
		return fmt.Errorf("delete_key %q must be one of the columns", c.DeleteKey)
	}
	return nil
}

func (c *Config) validate(db *database.DB) error {
	if c.FileName == "" {
		return fmt.Errorf("file_name is required")
	}
	if c.Destination.Table == "" {
		return fmt.Errorf("destination.table is required")
	}
	switch c.Materialisation {
	case Table, View:
		if c.DeleteKey != "" {
			return fmt.Errorf(`"delete_key" is invalid in non-incremental loads`)
		}
	case Incremental:
		if c.DeleteKey == "" {
			return fmt.Errorf(`"delete_key" is required for incremental loads`)
		}
	default:
		return fmt.Errorf("%q. Valid materialisations: table, view, incremental", c.Materialisation)
	}
	if db.Type == database.TypeSQLite {
		if c.Destination.Schema != "" {
			return fmt.Errorf("schema not supported for database of type %s", db.Type)
		}
		if c.Destination.TmpSchema != "" {
			return fmt.Errorf("tmp_schema not supported for database of type %s", db.Type)
		}
	}
	return c.validateColumns()
}

// Step is one named statement of a load.
type Step struct {
	Name  string
	Query string
}

// Runner implements autosql tasks.
type Runner struct {
	env   *task.Env
	cfg   Config
	db    *database.DB
	query string
}

func (r *Runner) Setup(ctx context.Context, env *task.Env, properties map[string]any) task.Result {
	r.env = env
	if err := task.DecodeProperties(properties, &r.cfg, columnHook); err != nil {
		return task.InvalidProperties(err)
	}

	db, err := env.Database(r.cfg.Destination.DB)
	if err != nil {
		return task.Fail(task.KindDefinition, "destination_db_not_in_settings", map[string]any{"db": r.cfg.Destination.DB})
	}
	r.db = db

	if err := r.cfg.validate(db); err != nil {
		return task.InvalidProperties(err)
	}

	query, err := env.ReadSQL(r.cfg.FileName)
	if err != nil {
		return task.FromError(task.KindSetup, "sql_file", err)
	}
	r.query = strings.TrimRight(strings.TrimSpace(query), ";")
	return task.Ok()
}

// Steps returns the statements of the load. Table loads, full loads and
// incremental loads into a missing table replace the target; other
// incremental loads merge into it by delete key.
func (r *Runner) Steps(ctx context.Context) ([]Step, error) {
	d := r.cfg.Destination
	target := r.db.Qualify(d.Schema, d.Table)

	source := r.source()
	if r.cfg.Materialisation == View {
		return []Step{
			{Name: "drop_view", Query: "DROP VIEW IF EXISTS " + target},
			{Name: "create_view", Query: "CREATE VIEW " + target + " AS\n" + source},
		}, nil
	}

	tmpSchema := d.TmpSchema
	if tmpSchema == "" {
		tmpSchema = d.Schema
	}
	tmp := r.db.Qualify(tmpSchema, tmpPrefix+d.Table)

	replace := r.cfg.Materialisation == Table || r.env.Vars.FullLoad
	if !replace {
		exists, err := r.db.TableExists(ctx, d.Schema, d.Table)
		if err != nil {
			return nil, err
		}
		replace = !exists
	}

	steps := []Step{{Name: "drop_tmp", Query: "DROP TABLE IF EXISTS " + tmp}}
	if r.cfg.typed() {
		steps = append(steps,
			Step{Name: "create_tmp", Query: "CREATE TABLE " + tmp + " (\n" + r.columnDDL() + "\n)"},
			Step{Name: "load_tmp", Query: fmt.Sprintf("INSERT INTO %s (%s)\n%s", tmp, r.columnList(), source)},
		)
	} else {
		steps = append(steps, Step{Name: "create_tmp", Query: "CREATE TABLE " + tmp + " AS\n" + source})
	}
	if replace {
		return append(steps,
			Step{Name: "drop_target", Query: "DROP TABLE IF EXISTS " + target},
			Step{Name: "rename", Query: r.renameQuery(tmp, target)},
		), nil
	}

	key := r.db.Quote(r.cfg.DeleteKey)
	return append(steps,
		Step{Name: "delete", Query: fmt.Sprintf("DELETE FROM %s WHERE %s IN (SELECT %s FROM %s)", target, key, key, tmp)},
		Step{Name: "insert", Query: r.insertQuery(target, tmp)},
		Step{Name: "drop_tmp", Query: "DROP TABLE " + tmp},
	), nil
}

// source is the load's SELECT, narrowed to the declared columns.
func (r *Runner) source() string {
	if len(r.cfg.Columns) == 0 {
		return r.query
	}
	return fmt.Sprintf("SELECT %s\nFROM (\n%s\n) AS src", r.columnList(), r.query)
}

func (r *Runner) columnList() string {
	names := make([]string, len(r.cfg.Columns))
	for i, c := range r.cfg.Columns {
		names[i] = r.db.Quote(c.Name)
	}
	return strings.Join(names, ", ")
}

func (r *Runner) columnDDL() string {
	defs := make([]string, len(r.cfg.Columns))
	for i, c := range r.cfg.Columns {
		defs[i] = "  " + r.db.Quote(c.Name) + " " + c.Type
	}
	return strings.Join(defs, ",\n")
}

func (r *Runner) insertQuery(target, tmp string) string {
	if len(r.cfg.Columns) == 0 {
		return fmt.Sprintf("INSERT INTO %s SELECT * FROM %s", target, tmp)
	}
	cols := r.columnList()
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", target, cols, cols, tmp)
}

// renameQuery moves the staging table into place. SQLite renames within a
// schema and takes an unqualified new name.
func (r *Runner) renameQuery(tmp, target string) string {
	if r.db.Type == database.TypeMySQL {
		return fmt.Sprintf("RENAME TABLE %s TO %s", tmp, target)
	}
	return fmt.Sprintf("ALTER TABLE %s RENAME TO %s", tmp, r.db.Quote(r.cfg.Destination.Table))
}

// Script joins steps into a single SQL file.
func Script(steps []Step) string {
	var sb strings.Builder
	for _, s := range steps {
		fmt.Fprintf(&sb, "-- %s\n%s;\n\n", s.Name, s.Query)
	}
	return sb.String()
}

func (r *Runner) Compile(ctx context.Context) task.Result {
	_, res := r.prepare(ctx)
	return res
}

func (r *Runner) Run(ctx context.Context) task.Result {
	steps, res := r.prepare(ctx)
	if !res.IsOk() {
		return res
	}
	for _, s := range steps {
		r.env.Log().Debug("Executing step.", "step", s.Name)
		if _, err := r.db.ExecContext(ctx, s.Query); err != nil {
			return task.Err(&task.Error{
				Kind:    task.KindException,
				Code:    "sql_error",
				Details: map[string]any{"step": s.Name},
				Err:     err,
			})
		}
	}
	r.env.Log().Info("▶️ Table materialised.",
		"materialisation", r.cfg.Materialisation,
		"table", r.db.Qualify(r.cfg.Destination.Schema, r.cfg.Destination.Table),
		"steps", len(steps))
	return task.Ok()
}

// prepare computes the steps and writes the select and the full script to
// the compile folder.
func (r *Runner) prepare(ctx context.Context) ([]Step, task.Result) {
	steps, err := r.Steps(ctx)
	if err != nil {
		return nil, task.FromError(task.KindException, "sql_error", err)
	}
	if _, err := r.env.WriteCompiled(r.env.Name+"_select.sql", r.query); err != nil {
		return nil, task.FromError(task.KindException, "write_compiled", err)
	}
	if _, err := r.env.WriteCompiled(r.env.Name+".sql", Script(steps)); err != nil {
		return nil, task.FromError(task.KindException, "write_compiled", err)
	}
	return steps, task.Ok()
}

// Register registers the runner with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner(Type, func() task.Runner { return &Runner{} })
}
