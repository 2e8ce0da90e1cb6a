package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapview/internal/cli/config"
	clitest "github.com/leapstack-labs/leapview/internal/cli/testutil"
	sharedcfg "github.com/leapstack-labs/leapview/internal/config"
	"github.com/leapstack-labs/leapview/internal/testutil"
	"github.com/leapstack-labs/leapview/pkg/navigation"

	_ "github.com/leapstack-labs/leapview/pkg/adapters/sqlite"
)

// setupProject creates a test project, makes it the working directory and
// loads its config.
func setupProject(t *testing.T) (string, *config.Config) {
	t.Helper()
	dir := clitest.SetupTestProject(t)
	t.Chdir(dir)
	cfg, err := config.LoadConfig("", nil)
	require.NoError(t, err)
	return dir, cfg
}

// execute runs cmd with args and cfg in its context.
func execute(t *testing.T, cfg *config.Config, cmd *cobra.Command, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	ctx := config.WithLogger(context.Background(), testutil.NewTestLogger(t))
	err := cmd.ExecuteContext(WithConfig(ctx, cfg))
	return out.String(), errOut.String(), err
}

func TestCommandMetadata(t *testing.T) {
	tests := []struct {
		cmd   *cobra.Command
		use   string
		flags []string
	}{
		{NewInspectCommand(), "inspect <file|manifest|@dataset>...", []string{"columns", "type", "table", "adapter"}},
		{NewReadCommand(), "read <file|manifest|@dataset>...", []string{"at", "from", "to", "all", "limit", "columns"}},
		{NewScrubCommand(), "scrub <file|manifest|@dataset>...", []string{"save", "rows", "type"}},
		{NewTablesCommand(), "tables [database]", []string{"adapter"}},
		{NewDatasetsCommand(), "datasets", nil},
	}

	for _, tt := range tests {
		t.Run(tt.use, func(t *testing.T) {
			assert.Equal(t, tt.use, tt.cmd.Use)
			assert.NotEmpty(t, tt.cmd.Short, "Short should not be empty")
			for _, flag := range tt.flags {
				assert.NotNil(t, tt.cmd.Flags().Lookup(flag), "flag %q should exist", flag)
			}
		})
	}
}

func TestInspectCommand(t *testing.T) {
	_, cfg := setupProject(t)

	out, _, err := execute(t, cfg, NewInspectCommand(), "data/events.csv")
	require.NoError(t, err)

	assert.Contains(t, out, "# events.csv\n")
	assert.Contains(t, out, "- **Rows**: 5\n")
	assert.Contains(t, out, "- **Navigation**: temporal\n")
	assert.Contains(t, out, "- **Navigation column**: ts\n")
	assert.Contains(t, out, "2024-01-01T00:00:00Z .. 2024-01-01T00:04:00Z")
	assert.Contains(t, out, "## Columns\n")
	assert.Contains(t, out, "| timestamp |")
	clitest.AssertNoANSI(t, out)
	clitest.AssertValidMarkdown(t, out)
}

func TestInspectCommand_JSON(t *testing.T) {
	_, cfg := setupProject(t)
	cfg.OutputFormat = "json"

	out, _, err := execute(t, cfg, NewInspectCommand(), "data/people.csv", "--type", "age=float64")
	require.NoError(t, err)

	var got struct {
		Source  string `json:"source"`
		Rows    int    `json:"rows"`
		Mode    string `json:"mode"`
		Columns []struct {
			Name     string `json:"name"`
			Type     string `json:"type"`
			Nullable bool   `json:"nullable"`
		} `json:"columns"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "people.csv", got.Source)
	assert.Equal(t, 3, got.Rows)
	assert.Equal(t, "sequential", got.Mode)
	require.Len(t, got.Columns, 3)
	assert.Equal(t, "id", got.Columns[0].Name)
	assert.Equal(t, "int64", got.Columns[0].Type)
	assert.Equal(t, "float64", got.Columns[2].Type)
	assert.True(t, got.Columns[2].Nullable)
}

func TestInspectCommand_Combined(t *testing.T) {
	_, cfg := setupProject(t)

	out, _, err := execute(t, cfg, NewInspectCommand(), "data/events.csv", "data/events2.csv")
	require.NoError(t, err)
	assert.Contains(t, out, "# Combined (2 files)\n")
	assert.Contains(t, out, "- **Rows**: 7\n")
	assert.Contains(t, out, "- **Navigation**: sequential\n")
	assert.Contains(t, out, "| _source_file |")
}

func TestInspectCommand_Errors(t *testing.T) {
	_, cfg := setupProject(t)

	_, _, err := execute(t, cfg, NewInspectCommand())
	assert.ErrorIs(t, err, errNoInput)

	_, _, err = execute(t, cfg, NewInspectCommand(), "data/missing.csv")
	assert.Error(t, err)

	_, _, err = execute(t, cfg, NewInspectCommand(), "data/people.csv", "--type", "age=decimal")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--type age")

	_, _, err = execute(t, cfg, NewInspectCommand(), "@nothing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no saved dataset named "nothing"`)
}

func TestReadCommand(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		window    int
		want      []string
		notWanted []string
	}{
		{
			name:      "at row with limit",
			args:      []string{"data/people.csv", "--at", "1", "--limit", "2"},
			want:      []string{"Bob", "Carol", "NULL"},
			notWanted: []string{"Alice"},
		},
		{
			name:      "range",
			args:      []string{"data/people.csv", "--from", "0", "--to", "2"},
			want:      []string{"Alice", "Bob"},
			notWanted: []string{"Carol"},
		},
		{
			name:      "selected columns",
			args:      []string{"data/people.csv", "--all", "--columns", "name"},
			want:      []string{"| name |", "Alice", "Carol"},
			notWanted: []string{"age"},
		},
		{
			name:      "timestamp window",
			args:      []string{"data/events.csv", "--at", "t:1704067320000"},
			window:    2,
			want:      []string{"slow", "ok"},
			notWanted: []string{"start", "done"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, cfg := setupProject(t)
			if tt.window > 0 {
				cfg.WindowSize = tt.window
			}
			out, _, err := execute(t, cfg, NewReadCommand(), tt.args...)
			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
			for _, nw := range tt.notWanted {
				assert.NotContains(t, out, nw)
			}
		})
	}
}

func TestReadCommand_CSV(t *testing.T) {
	_, cfg := setupProject(t)
	cfg.OutputFormat = "csv"

	out, _, err := execute(t, cfg, NewReadCommand(), "data/people.csv", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "id,name,age\n")
	assert.Contains(t, out, "1,Alice,30\n")
	assert.Contains(t, out, "2,Bob,NULL\n")
}

func TestReadCommand_Errors(t *testing.T) {
	_, cfg := setupProject(t)

	_, _, err := execute(t, cfg, NewReadCommand(), "data/events.csv", "--at", "3")
	assert.ErrorIs(t, err, navigation.ErrModeMismatch)

	_, _, err = execute(t, cfg, NewReadCommand(), "data/people.csv", "--at", "10")
	assert.ErrorIs(t, err, navigation.ErrOutOfBounds)

	_, _, err = execute(t, cfg, NewReadCommand(), "data/people.csv", "--from", "0", "--to", "t:5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mixes position kinds")

	_, _, err = execute(t, cfg, NewReadCommand(), "data/people.csv", "--limit", "-1")
	assert.Error(t, err)
}

func seedDB(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "data", "app.db")
	clitest.CreateSQLiteDB(t, path,
		`CREATE TABLE events (id INTEGER, label TEXT)`,
		`INSERT INTO events VALUES (1, 'a'), (2, 'b'), (3, 'c')`,
		`CREATE TABLE users (id INTEGER, name TEXT, email TEXT)`,
	)
	return path
}

func TestTablesCommand(t *testing.T) {
	dir, cfg := setupProject(t)
	seedDB(t, dir)
	cfg.OutputFormat = "json"

	out, _, err := execute(t, cfg, NewTablesCommand(), "data/app.db")
	require.NoError(t, err)

	var got []tableSummary
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, []tableSummary{
		{Name: "events", Columns: 2, Rows: 3},
		{Name: "users", Columns: 3, Rows: 0},
	}, got)

	cfg.Target = nil
	_, _, err = execute(t, cfg, NewTablesCommand())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no database")
}

func TestReadCommand_Table(t *testing.T) {
	dir, cfg := setupProject(t)
	seedDB(t, dir)
	cfg.OutputFormat = "json"

	out, _, err := execute(t, cfg, NewReadCommand(), "data/app.db", "--table", "events", "--all")
	require.NoError(t, err)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 3)
	assert.Equal(t, "c", rows[2]["label"])
}

func TestDatasetsCommand(t *testing.T) {
	dir, cfg := setupProject(t)

	out, _, err := execute(t, cfg, NewDatasetsCommand(), "save", "people", "data/people.csv", "--columns", "id,name")
	require.NoError(t, err)
	assert.Contains(t, out, "saved people (1 file)")

	out, _, err = execute(t, cfg, NewDatasetsCommand(), "list")
	require.NoError(t, err)
	assert.Contains(t, out, "| people | delimited |")

	// Saved selection applies when the dataset is opened by name.
	cfg.OutputFormat = "json"
	out, _, err = execute(t, cfg, NewInspectCommand(), "@people")
	require.NoError(t, err)
	var ins inspection
	require.NoError(t, json.Unmarshal([]byte(out), &ins))
	require.Len(t, ins.Columns, 2)
	assert.Equal(t, "name", ins.Columns[1].Name)
	cfg.OutputFormat = "markdown"

	out, _, err = execute(t, cfg, NewDatasetsCommand(), "show", "people")
	require.NoError(t, err)
	assert.Contains(t, out, "# people\n")
	assert.Contains(t, out, "## Files\n")

	manifest := filepath.Join(dir, "people"+sharedcfg.ManifestSuffix)
	_, _, err = execute(t, cfg, NewDatasetsCommand(), "export", "people")
	require.NoError(t, err)
	m, err := sharedcfg.LoadManifest(manifest)
	require.NoError(t, err)
	assert.Equal(t, "people", m.Name)
	require.Len(t, m.Files, 1)
	assert.Equal(t, []string{"id", "name"}, m.Files[0].SelectedColumns)

	_, _, err = execute(t, cfg, NewDatasetsCommand(), "import", manifest, "--name", "people2")
	require.NoError(t, err)

	_, _, err = execute(t, cfg, NewDatasetsCommand(), "delete", "people")
	require.NoError(t, err)
	_, _, err = execute(t, cfg, NewDatasetsCommand(), "delete", "people")
	require.Error(t, err)

	out, _, err = execute(t, cfg, NewDatasetsCommand(), "list")
	require.NoError(t, err)
	assert.NotContains(t, out, "| people |")
	assert.Contains(t, out, "| people2 |")

	_, _, err = execute(t, cfg, NewDatasetsCommand(), "save", "bad name", "data/people.csv")
	assert.Error(t, err)
}

func TestAdapterForPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"app.db", "sqlite"},
		{"app.sqlite3", "sqlite"},
		{"warehouse.duckdb", "duckdb"},
		{"WAREHOUSE.DDB", "duckdb"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, adapterForPath(tt.path))
		})
	}
}
