package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Quote quotes an identifier for the connection's dialect.
func (db *DB) Quote(ident string) string {
	if db.Type == TypeMySQL {
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// Qualify returns a quoted, optionally schema qualified, table name.
func (db *DB) Qualify(schema, table string) string {
	if schema == "" {
		return db.Quote(table)
	}
	return db.Quote(schema) + "." + db.Quote(table)
}

// TableExists reports whether a table or view exists.
func (db *DB) TableExists(ctx context.Context, schema, table string) (bool, error) {
	var (
		q    string
		args []any
	)
	switch db.Type {
	case TypeMySQL:
		if schema == "" {
			q = "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?"
			args = []any{table}
		} else {
			q = "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = ? AND table_name = ?"
			args = []any{schema, table}
		}
	default:
		master := "sqlite_master"
		if schema != "" {
			master = db.Quote(schema) + ".sqlite_master"
		}
		q = "SELECT COUNT(*) FROM " + master + " WHERE type IN ('table', 'view') AND name = ?"
		args = []any{table}
	}

	var n int
	if err := db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", db.Qualify(schema, table), err)
	}
	return n > 0, nil
}

// ExecAll runs statements in order, stopping at the first failure.
func (db *DB) ExecAll(ctx context.Context, statements ...string) error {
	for i, stmt := range statements {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("statement %d: %w", i+1, err)
		}
	}
	return nil
}

// MaxBindVars is the most bind variables a single statement may carry.
func (db *DB) MaxBindVars() int {
	if db.Type == TypeMySQL {
		return 65535
	}
	return 32766
}

// Placeholders returns n comma separated bind placeholders.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// ScanRows reads every row into a slice of column values.
func ScanRows(rows *sql.Rows) ([]string, [][]any, error) {
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	var out [][]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		out = append(out, vals)
	}
	return cols, out, rows.Err()
}
