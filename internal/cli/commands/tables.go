package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapview/internal/cli/output"
	"github.com/leapstack-labs/leapview/pkg/adapter"
)

// tableSummary is one row of the tables command.
type tableSummary struct {
	Name    string `json:"name"`
	Columns int    `json:"columns"`
	Rows    int64  `json:"rows"`
}

// NewTablesCommand creates the tables command.
func NewTablesCommand() *cobra.Command {
	var adapterType string
	cmd := &cobra.Command{
		Use:   "tables [database]",
		Short: "List the tables of a database",
		Long: `List the tables of a database file, or of the target configured in
leapview.yaml when no file is given, with their column and row counts.`,
		Example: `  leapview tables app.db
  leapview tables warehouse.duckdb -o json
  leapview tables              # uses the configured target`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			conn, err := c.connection(args, adapterType)
			if err != nil {
				return err
			}
			return runTables(cmd.Context(), c, conn)
		},
	}
	cmd.Flags().StringVar(&adapterType, "adapter", "", "Database adapter (default: from the file extension)")
	return cmd
}

// connection picks the database a command talks to: a file argument, or
// the configured target.
func (c *CommandContext) connection(args []string, adapterType string) (*adapter.Config, error) {
	if len(args) == 1 {
		if adapterType == "" {
			adapterType = adapterForPath(args[0])
		}
		return &adapter.Config{Type: adapterType, Path: args[0]}, nil
	}
	if c.Cfg.Target == nil {
		return nil, errors.New("no database: pass a database file or configure a target")
	}
	return c.Cfg.Target.ToAdapterConfig(), nil
}

func runTables(ctx context.Context, c *CommandContext, conn *adapter.Config) error {
	db, err := adapter.NewAdapter(*conn, c.Logger)
	if err != nil {
		return err
	}
	if err := db.Connect(ctx, *conn); err != nil {
		return fmt.Errorf("connecting to %s: %w", conn.Type, err)
	}
	defer func() { _ = db.Close() }()

	names, err := db.ListTables(ctx)
	if err != nil {
		return err
	}
	summaries := make([]tableSummary, 0, len(names))
	for _, name := range names {
		meta, err := db.GetTableMetadata(ctx, name)
		if err != nil {
			return fmt.Errorf("describing %s: %w", name, err)
		}
		summaries = append(summaries, tableSummary{Name: name, Columns: len(meta.Columns), Rows: meta.RowCount})
	}

	r := c.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(summaries)
	}
	if len(summaries) == 0 {
		r.Muted("no tables")
		return nil
	}
	rows := make([][]string, len(summaries))
	for i, s := range summaries {
		rows[i] = []string{s.Name, strconv.Itoa(s.Columns), strconv.FormatInt(s.Rows, 10)}
	}
	return r.Table([]string{"table", "columns", "rows"}, rows)
}
