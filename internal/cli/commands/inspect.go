package commands

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapview/internal/cli/output"
	"github.com/leapstack-labs/leapview/pkg/navigation"
	"github.com/leapstack-labs/leapview/pkg/schema"
	"github.com/leapstack-labs/leapview/pkg/source"
)

// infoSource is implemented by sources that keep their detected schema.
type infoSource interface {
	Info() *schema.Info
}

// inspection is the JSON shape of the inspect command.
type inspection struct {
	Source           string             `json:"source"`
	Rows             int                `json:"rows"`
	Mode             string             `json:"mode"`
	NavigationColumn string             `json:"navigation_column,omitempty"`
	Bounds           *navigation.Bounds `json:"bounds,omitempty"`
	Categories       []string           `json:"categories,omitempty"`
	Columns          []schema.Column    `json:"columns"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand() *cobra.Command {
	var flags sourceFlags
	cmd := &cobra.Command{
		Use:   "inspect <file|manifest|@dataset>...",
		Short: "Show the schema, statistics and navigation of a dataset",
		Long: `Open a dataset and describe it: the row count, the navigation mode
and the detected type and statistics of every column.`,
		Example: `  leapview inspect events.csv
  leapview inspect 2024-*.csv --type ts=timestamp
  leapview inspect app.db --table events -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			return runInspect(cmd.Context(), c, args, flags)
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

func runInspect(ctx context.Context, c *CommandContext, args []string, flags sourceFlags) error {
	ds, err := c.resolveDataset(ctx, args, flags)
	if err != nil {
		return err
	}
	sess, src, err := c.open(ctx, ds)
	if err != nil {
		return err
	}
	defer sess.Close()

	spec, err := src.NavigationSpec(ctx)
	if err != nil {
		return err
	}
	ins := describe(src, spec)

	r := c.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(ins)
	}

	r.Header(1, ins.Source)
	r.KeyValue("Rows", strconv.Itoa(ins.Rows))
	r.KeyValue("Navigation", ins.Mode)
	if ins.NavigationColumn != "" {
		r.KeyValue("Navigation column", ins.NavigationColumn)
	}
	if ins.Bounds != nil {
		r.KeyValue("Time range", formatMillis(ins.Bounds.Min)+" .. "+formatMillis(ins.Bounds.Max))
	}
	r.Println()
	r.Header(2, "Columns")
	return r.Table(columnHeader, columnRows(ins.Columns))
}

var columnHeader = []string{"column", "type", "nullable", "nulls", "distinct", "sorted", "unique", "min", "max"}

func columnRows(cols []schema.Column) [][]string {
	rows := make([][]string, len(cols))
	for i, col := range cols {
		st := col.Stats
		rows[i] = []string{
			col.Name,
			col.Type.String(),
			strconv.FormatBool(col.Nullable),
			strconv.Itoa(st.NullCount),
			strconv.Itoa(st.DistinctCount),
			strconv.FormatBool(st.IsSorted),
			strconv.FormatBool(st.IsUnique),
			st.Min,
			st.Max,
		}
	}
	return rows
}

// describe summarizes src. Sources without detection info only report
// names, types and nullability taken from the arrow schema.
func describe(src source.DataSource, spec navigation.Spec) inspection {
	ins := inspection{
		Source:     src.SourceName(),
		Rows:       spec.TotalRows,
		Mode:       spec.Mode.String(),
		Bounds:     spec.TemporalBounds,
		Categories: spec.Categories,
	}
	if is, ok := src.(infoSource); ok && is.Info() != nil {
		info := is.Info()
		ins.Columns = info.Columns
		ins.NavigationColumn = info.NavigationColumn
		return ins
	}
	for _, f := range src.Schema().Fields() {
		ins.Columns = append(ins.Columns, schema.Column{
			Name:     f.Name,
			Type:     schema.FromArrow(f.Type),
			Nullable: f.Nullable,
		})
	}
	return ins
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339Nano)
}

// describePosition renders a position for humans, with timestamps as dates.
func describePosition(p navigation.Position) string {
	if p.Kind == navigation.KindTemporal {
		return fmt.Sprintf("%s (%s)", p, formatMillis(p.Timestamp))
	}
	return p.String()
}
