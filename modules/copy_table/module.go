// Package copy_table copies rows of a table between two databases.
package copy_table

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/taskgrid/internal/database"
	"github.com/vk/taskgrid/internal/registry"
	"github.com/vk/taskgrid/internal/task"
)

// Type is the task type handled by this module.
const Type = "copy"

const defaultBatchSize = 1000

// Module implements the registry.Module interface for this package.
type Module struct{}

// Endpoint is one side of a copy.
type Endpoint struct {
	DB     string `mapstructure:"db"`
	Schema string `mapstructure:"schema"`
	Table  string `mapstructure:"table"`
}

// Config holds the properties of a copy task.
type Config struct {
	Source         Endpoint `mapstructure:"source"`
	Destination    Endpoint `mapstructure:"destination"`
	Columns        []string `mapstructure:"columns"`
	IncrementalKey string   `mapstructure:"incremental_key"`
	BatchSize      int      `mapstructure:"batch_size"`
}

// Runner implements copy tasks.
type Runner struct {
	env *task.Env
	cfg Config
	src *database.DB
	dst *database.DB
}

func (r *Runner) Setup(ctx context.Context, env *task.Env, properties map[string]any) task.Result {
	r.env = env
	if err := task.DecodeProperties(properties, &r.cfg); err != nil {
		return task.InvalidProperties(err)
	}
	if r.cfg.Source.Table == "" || r.cfg.Destination.Table == "" {
		return task.InvalidProperties(fmt.Errorf("source.table and destination.table are required"))
	}
	if r.cfg.Source.DB == "" {
		return task.InvalidProperties(fmt.Errorf("source.db is required"))
	}
	if r.cfg.BatchSize <= 0 {
		r.cfg.BatchSize = defaultBatchSize
	}
	if r.cfg.IncrementalKey != "" && len(r.cfg.Columns) > 0 && !contains(r.cfg.Columns, r.cfg.IncrementalKey) {
		return task.InvalidProperties(fmt.Errorf("incremental_key %q must be one of the copied columns", r.cfg.IncrementalKey))
	}

	var err error
	if r.src, err = env.Database(r.cfg.Source.DB); err != nil {
		return task.Fail(task.KindDefinition, "source_db_not_in_settings", map[string]any{"db": r.cfg.Source.DB})
	}
	if r.dst, err = env.Database(r.cfg.Destination.DB); err != nil {
		return task.Fail(task.KindDefinition, "destination_db_not_in_settings", map[string]any{"db": r.cfg.Destination.DB})
	}
	return task.Ok()
}

// incremental reports whether only new rows are copied.
func (r *Runner) incremental() bool {
	return r.cfg.IncrementalKey != "" && !r.env.Vars.FullLoad
}

// Plan holds the statements of a copy. The insert statement is the
// single-row form; batches repeat its values group.
type Plan struct {
	Truncate string
	MaxKey   string
	Select   string
	// Filter restricts Select to keys above the destination maximum.
	Filter string
	Insert string
}

func (r *Runner) plan() Plan {
	src, dst := r.cfg.Source, r.cfg.Destination
	target := r.dst.Qualify(dst.Schema, dst.Table)

	cols := "*"
	if len(r.cfg.Columns) > 0 {
		cols = quoteAll(r.src, r.cfg.Columns)
	}
	p := Plan{Select: fmt.Sprintf("SELECT %s FROM %s", cols, r.src.Qualify(src.Schema, src.Table))}
	if r.incremental() {
		key := r.cfg.IncrementalKey
		p.MaxKey = fmt.Sprintf("SELECT MAX(%s) FROM %s", r.dst.Quote(key), target)
		p.Filter = fmt.Sprintf(" WHERE %s > ?", r.src.Quote(key))
	} else {
		p.Truncate = "DELETE FROM " + target
	}
	if len(r.cfg.Columns) > 0 {
		p.Insert = insertQuery(r.dst, target, r.cfg.Columns, 1)
	}
	return p
}

func (p Plan) script() string {
	var parts []string
	for _, q := range []string{p.Truncate, p.MaxKey, p.Select + p.Filter, p.Insert} {
		if q != "" {
			parts = append(parts, q+";")
		}
	}
	return strings.Join(parts, "\n\n") + "\n"
}

func (r *Runner) Compile(ctx context.Context) task.Result {
	if _, err := r.env.WriteCompiled(r.env.Name+".sql", r.plan().script()); err != nil {
		return task.FromError(task.KindException, "write_compiled", err)
	}
	return task.Ok()
}

func (r *Runner) Run(ctx context.Context) task.Result {
	if res := r.Compile(ctx); !res.IsOk() {
		return res
	}
	n, err := r.transfer(ctx, r.plan())
	if err != nil {
		return task.FromError(task.KindException, "copy_error", err)
	}
	r.env.Log().Info("▶️ Rows copied.",
		"source", r.cfg.Source.DB, "destination", r.dst.Name, "rows", n, "incremental", r.incremental())
	return task.Ok()
}

// transfer reads the source rows and writes them to the destination in one
// transaction, returning the number of rows copied.
func (r *Runner) transfer(ctx context.Context, p Plan) (int, error) {
	query := p.Select
	var args []any
	if p.MaxKey != "" {
		var maxKey any
		if err := r.dst.QueryRowContext(ctx, p.MaxKey).Scan(&maxKey); err != nil {
			return 0, fmt.Errorf("read destination max key: %w", err)
		}
		// An empty destination takes every row.
		if maxKey != nil {
			query += p.Filter
			args = append(args, maxKey)
		}
	}

	rows, err := r.src.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("read source: %w", err)
	}
	cols, data, err := database.ScanRows(rows)
	if err != nil {
		return 0, fmt.Errorf("read source: %w", err)
	}

	tx, err := r.dst.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck

	if p.Truncate != "" {
		if _, err := tx.ExecContext(ctx, p.Truncate); err != nil {
			return 0, fmt.Errorf("empty destination: %w", err)
		}
	}

	target := r.dst.Qualify(r.cfg.Destination.Schema, r.cfg.Destination.Table)
	size := batchRows(r.cfg.BatchSize, len(cols), r.dst.MaxBindVars())
	for start := 0; start < len(data); start += size {
		end := min(start+size, len(data))
		batch := data[start:end]
		values := make([]any, 0, len(batch)*len(cols))
		for _, row := range batch {
			values = append(values, row...)
		}
		if _, err := tx.ExecContext(ctx, insertQuery(r.dst, target, cols, len(batch)), values...); err != nil {
			return 0, fmt.Errorf("insert rows %d-%d: %w", start+1, end, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(data), nil
}

// batchRows caps the rows of one insert so the statement stays within the
// dialect's bind variable limit.
func batchRows(batchSize, cols, maxVars int) int {
	if cols <= 0 {
		return batchSize
	}
	return max(1, min(batchSize, maxVars/cols))
}

func insertQuery(db *database.DB, target string, cols []string, rows int) string {
	group := "(" + database.Placeholders(len(cols)) + ")"
	groups := make([]string, rows)
	for i := range groups {
		groups[i] = group
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", target, quoteAll(db, cols), strings.Join(groups, ", "))
}

func quoteAll(db *database.DB, cols []string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = db.Quote(c)
	}
	return strings.Join(out, ", ")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Register registers the runner with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner(Type, func() task.Runner { return &Runner{} })
}
