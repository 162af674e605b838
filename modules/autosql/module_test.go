package autosql

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/taskgrid/internal/database"
	"github.com/vk/taskgrid/internal/task"
	"github.com/vk/taskgrid/internal/testutil"
)

const selectSQL = "SELECT id, name FROM src WHERE id >= ${min_id};"

func stepNames(steps []Step) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.Name
	}
	return out
}

func sqliteEnv(t *testing.T) (*task.Env, *database.DB) {
	t.Helper()
	pool := testutil.SQLitePool(t, "warehouse")
	db, err := pool.Get("warehouse")
	require.NoError(t, err)
	require.NoError(t, db.ExecAll(context.Background(),
		"CREATE TABLE src (id INTEGER, name TEXT)",
		"INSERT INTO src VALUES (1, 'a'), (2, 'b'), (3, 'c')",
	))
	env := testutil.NewEnv(t, pool, map[string]any{"min_id": 2}, map[string]string{"q.sql": selectSQL})
	return env, db
}

func count(t *testing.T, db *database.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestRunner_Table(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	env, db := sqliteEnv(t)
	ctx := context.Background()
	r := &Runner{}
	require.True(t, r.Setup(ctx, env, map[string]any{
		"file_name":       "q.sql",
		"materialisation": "table",
		"destination":     map[string]any{"table": "out"},
	}).IsOk())

	// --- Act ---
	res := r.Run(ctx)

	// --- Assert ---
	require.True(t, res.IsOk(), "run: %v", res.Error())
	assert.Equal(t, 2, count(t, db, "out"))
	exists, err := db.TableExists(ctx, "", tmpPrefix+"out")
	require.NoError(t, err)
	assert.False(t, exists, "staging table is renamed away")

	assert.Equal(t, "SELECT id, name FROM src WHERE id >= 2", testutil.ReadCompiled(t, env, "t_select.sql"))
	script := testutil.ReadCompiled(t, env, "t.sql")
	assert.Contains(t, script, "-- create_tmp\nCREATE TABLE \"taskgrid_tmp_out\" AS\nSELECT id, name FROM src WHERE id >= 2;")
	assert.Contains(t, script, `ALTER TABLE "taskgrid_tmp_out" RENAME TO "out";`)

	// A second run replaces the table instead of appending.
	require.True(t, r.Run(ctx).IsOk())
	assert.Equal(t, 2, count(t, db, "out"))
}

func TestRunner_View(t *testing.T) {
	t.Parallel()

	env, db := sqliteEnv(t)
	ctx := context.Background()
	r := &Runner{}
	require.True(t, r.Setup(ctx, env, map[string]any{
		"file_name":       "q.sql",
		"materialisation": "view",
		"destination":     map[string]any{"table": "v"},
	}).IsOk())

	steps, err := r.Steps(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"drop_view", "create_view"}, stepNames(steps))

	require.True(t, r.Run(ctx).IsOk())
	require.NoError(t, db.ExecAll(ctx, "INSERT INTO src VALUES (4, 'd')"))
	assert.Equal(t, 3, count(t, db, "v"), "a view follows its source")
}

func TestRunner_Incremental(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	env, db := sqliteEnv(t)
	ctx := context.Background()
	r := &Runner{}
	require.True(t, r.Setup(ctx, env, map[string]any{
		"file_name":       "q.sql",
		"materialisation": "incremental",
		"delete_key":      "id",
		"destination":     map[string]any{"table": "inc"},
	}).IsOk())

	// --- Act & Assert ---
	steps, err := r.Steps(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"drop_tmp", "create_tmp", "drop_target", "rename"}, stepNames(steps), "missing target is replaced")
	require.True(t, r.Run(ctx).IsOk())
	assert.Equal(t, 2, count(t, db, "inc"))

	require.NoError(t, db.ExecAll(ctx, "UPDATE src SET name = 'B' WHERE id = 2", "INSERT INTO src VALUES (4, 'd')"))
	steps, err = r.Steps(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"drop_tmp", "create_tmp", "delete", "insert", "drop_tmp"}, stepNames(steps))
	require.True(t, r.Run(ctx).IsOk())

	assert.Equal(t, 3, count(t, db, "inc"))
	var name string
	require.NoError(t, db.QueryRowContext(ctx, "SELECT name FROM inc WHERE id = 2").Scan(&name))
	assert.Equal(t, "B", name, "rows matching the delete key are replaced")

	env.Vars.FullLoad = true
	steps, err = r.Steps(ctx)
	require.NoError(t, err)
	assert.Equal(t, "rename", steps[len(steps)-1].Name, "full load replaces the target")
}

func TestRunner_Columns(t *testing.T) {
	t.Parallel()

	t.Run("typed columns create the staging table first", func(t *testing.T) {
		t.Parallel()

		// --- Arrange ---
		env, db := sqliteEnv(t)
		ctx := context.Background()
		r := &Runner{}
		require.True(t, r.Setup(ctx, env, map[string]any{
			"file_name":       "q.sql",
			"materialisation": "incremental",
			"delete_key":      "id",
			"destination":     map[string]any{"table": "typed"},
			"columns": []any{
				map[string]any{"name": "id", "type": "INTEGER NOT NULL"},
				map[string]any{"name": "name", "type": "TEXT"},
			},
		}).IsOk())

		// --- Act ---
		steps, err := r.Steps(ctx)
		require.NoError(t, err)
		require.True(t, r.Run(ctx).IsOk())
		require.True(t, r.Run(ctx).IsOk())

		// --- Assert ---
		assert.Equal(t, []string{"drop_tmp", "create_tmp", "load_tmp", "drop_target", "rename"}, stepNames(steps))
		assert.Equal(t, "CREATE TABLE \"taskgrid_tmp_typed\" (\n  \"id\" INTEGER NOT NULL,\n  \"name\" TEXT\n)", steps[1].Query)
		assert.Equal(t, "INSERT INTO \"taskgrid_tmp_typed\" (\"id\", \"name\")\nSELECT \"id\", \"name\"\nFROM (\nSELECT id, name FROM src WHERE id >= 2\n) AS src", steps[2].Query)
		assert.Equal(t, 2, count(t, db, "typed"), "second run merges by delete key")
		assert.Contains(t, testutil.ReadCompiled(t, env, "t.sql"), `INSERT INTO "typed" ("id", "name") SELECT "id", "name" FROM "taskgrid_tmp_typed";`)
	})

	t.Run("names narrow the select", func(t *testing.T) {
		t.Parallel()

		// --- Arrange ---
		env, db := sqliteEnv(t)
		ctx := context.Background()
		r := &Runner{}
		require.True(t, r.Setup(ctx, env, map[string]any{
			"file_name":       "q.sql",
			"materialisation": "view",
			"destination":     map[string]any{"table": "names"},
			"columns":         []any{"name"},
		}).IsOk())

		// --- Act ---
		res := r.Run(ctx)

		// --- Assert ---
		require.True(t, res.IsOk(), "run: %v", res.Error())
		assert.Equal(t, []Column{{Name: "name"}}, r.cfg.Columns)
		rows, err := db.QueryContext(ctx, "SELECT * FROM names")
		require.NoError(t, err)
		cols, data, err := database.ScanRows(rows)
		require.NoError(t, err)
		assert.Equal(t, []string{"name"}, cols)
		assert.Len(t, data, 2)
	})
}

func TestRunner_SetupErrors(t *testing.T) {
	t.Parallel()

	dest := map[string]any{"table": "out"}
	tests := []struct {
		name  string
		props map[string]any
		code  string
		msg   string
	}{
		{
			name:  "bad materialisation",
			props: map[string]any{"file_name": "q.sql", "materialisation": "snapshot", "destination": dest},
			code:  "invalid_properties",
			msg:   "Valid materialisations",
		},
		{
			name:  "incremental without delete key",
			props: map[string]any{"file_name": "q.sql", "materialisation": "incremental", "destination": dest},
			code:  "invalid_properties",
			msg:   "required for incremental",
		},
		{
			name:  "delete key on table",
			props: map[string]any{"file_name": "q.sql", "materialisation": "table", "delete_key": "id", "destination": dest},
			code:  "invalid_properties",
			msg:   "invalid in non-incremental",
		},
		{
			name:  "schema on sqlite",
			props: map[string]any{"file_name": "q.sql", "materialisation": "table", "destination": map[string]any{"table": "out", "schema": "dw"}},
			code:  "invalid_properties",
			msg:   "schema not supported",
		},
		{
			name:  "missing destination table",
			props: map[string]any{"file_name": "q.sql", "materialisation": "table"},
			code:  "invalid_properties",
			msg:   "destination.table",
		},
		{
			name: "columns mixing typed and untyped",
			props: map[string]any{"file_name": "q.sql", "materialisation": "table", "destination": dest,
				"columns": []any{map[string]any{"name": "id", "type": "INTEGER"}, "name"}},
			code: "invalid_properties",
			msg:  "all declare a type or none",
		},
		{
			name: "delete key outside columns",
			props: map[string]any{"file_name": "q.sql", "materialisation": "incremental", "delete_key": "id", "destination": dest,
				"columns": []any{"name"}},
			code: "invalid_properties",
			msg:  `delete_key "id" must be one of the columns`,
		},
		{
			name: "duplicate column",
			props: map[string]any{"file_name": "q.sql", "materialisation": "table", "destination": dest,
				"columns": []any{"id", "id"}},
			code: "invalid_properties",
			msg:  "listed twice",
		},
		{
			name:  "unknown destination db",
			props: map[string]any{"file_name": "q.sql", "materialisation": "table", "destination": map[string]any{"table": "out", "db": "nope"}},
			code:  "destination_db_not_in_settings",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env, _ := sqliteEnv(t)

			res := (&Runner{}).Setup(context.Background(), env, tt.props)

			require.False(t, res.IsOk())
			assert.Equal(t, task.KindDefinition, res.Error().Kind)
			assert.Equal(t, tt.code, res.Error().Code)
			if tt.msg != "" {
				assert.ErrorContains(t, res.Error(), tt.msg)
			}
		})
	}
}

func TestRunner_MySQLSteps(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	pool := database.NewPool(&database.DB{Name: "warehouse", Type: database.TypeMySQL, DB: mockDB})
	env := testutil.NewEnv(t, pool, map[string]any{"min_id": 0}, map[string]string{"q.sql": selectSQL})

	r := &Runner{}
	require.True(t, r.Setup(context.Background(), env, map[string]any{
		"file_name":       "q.sql",
		"materialisation": "incremental",
		"delete_key":      "id",
		"destination":     map[string]any{"schema": "dw", "tmp_schema": "stage", "table": "orders"},
	}).IsOk())

	mock.ExpectQuery("SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = ? AND table_name = ?").
		WithArgs("dw", "orders").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))

	// --- Act ---
	steps, err := r.Steps(context.Background())

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, []Step{
		{Name: "drop_tmp", Query: "DROP TABLE IF EXISTS `stage`.`taskgrid_tmp_orders`"},
		{Name: "create_tmp", Query: "CREATE TABLE `stage`.`taskgrid_tmp_orders` AS\nSELECT id, name FROM src WHERE id >= 0"},
		{Name: "delete", Query: "DELETE FROM `dw`.`orders` WHERE `id` IN (SELECT `id` FROM `stage`.`taskgrid_tmp_orders`)"},
		{Name: "insert", Query: "INSERT INTO `dw`.`orders` SELECT * FROM `stage`.`taskgrid_tmp_orders`"},
		{Name: "drop_tmp", Query: "DROP TABLE `stage`.`taskgrid_tmp_orders`"},
	}, steps)
	assert.NoError(t, mock.ExpectationsWereMet())

	env.Vars.FullLoad = true
	steps, err = r.Steps(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "RENAME TABLE `stage`.`taskgrid_tmp_orders` TO `dw`.`orders`", steps[3].Query)
}
