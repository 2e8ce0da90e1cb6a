package commands

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapview/internal/cli/output"
	sharedcfg "github.com/leapstack-labs/leapview/internal/config"
	"github.com/leapstack-labs/leapview/internal/state"
)

// NewDatasetsCommand creates the datasets command and its subcommands.
func NewDatasetsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "datasets",
		Aliases: []string{"ds"},
		Short:   "Manage saved datasets and their bookmarks",
		Long: `Saved datasets remember a set of files with their column selection,
types and null handling. Open them anywhere with @name.`,
	}
	cmd.AddCommand(
		newDatasetsListCommand(),
		newDatasetsSaveCommand(),
		newDatasetsShowCommand(),
		newDatasetsDeleteCommand(),
		newDatasetsExportCommand(),
		newDatasetsImportCommand(),
	)
	return cmd
}

// withStore runs fn with an open store.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, c *CommandContext, store *state.SQLiteStore) error) error {
	c, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	store, err := c.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return fn(ctx, c, store)
}

func newDatasetsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List saved datasets",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(ctx context.Context, c *CommandContext, store *state.SQLiteStore) error {
				list, err := store.ListDatasets(ctx)
				if err != nil {
					return err
				}
				return renderDatasets(c.Renderer, list)
			})
		},
	}
}

type datasetSummary struct {
	Name     string     `json:"name"`
	Kind     string     `json:"kind"`
	Files    []string   `json:"files"`
	Updated  time.Time  `json:"updated_at"`
	OpenedAt *time.Time `json:"opened_at,omitempty"`
}

func renderDatasets(r *output.Renderer, list []*state.Dataset) error {
	summaries := make([]datasetSummary, len(list))
	for i, d := range list {
		summaries[i] = datasetSummary{Name: d.Name, Kind: string(d.Kind), Updated: d.UpdatedAt, OpenedAt: d.OpenedAt}
		for _, f := range d.Files {
			summaries[i].Files = append(summaries[i].Files, fileLabel(f.Path, f.Table))
		}
	}
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(summaries)
	}
	if len(summaries) == 0 {
		r.Muted("no saved datasets")
		return nil
	}
	rows := make([][]string, len(summaries))
	for i, s := range summaries {
		opened := "never"
		if s.OpenedAt != nil {
			opened = s.OpenedAt.Local().Format(time.DateTime)
		}
		rows[i] = []string{s.Name, s.Kind, strings.Join(s.Files, ", "), opened}
	}
	return r.Table([]string{"name", "kind", "files", "last opened"}, rows)
}

func fileLabel(path, table string) string {
	if table != "" {
		return path + "#" + table
	}
	return path
}

func newDatasetsSaveCommand() *cobra.Command {
	var flags sourceFlags
	cmd := &cobra.Command{
		Use:   "save <name> <file|manifest>...",
		Short: "Save files under a name",
		Example: `  leapview datasets save sensors sensors-*.csv --type ts=timestamp
  leapview datasets save orders app.db --table orders`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, c *CommandContext, store *state.SQLiteStore) error {
				name := args[0]
				if err := validateDatasetName(name); err != nil {
					return err
				}
				if len(args) > 1 && strings.HasPrefix(args[1], "@") {
					return errors.New("cannot save a saved dataset; use datasets export and import to copy one")
				}
				ds, err := c.resolveDataset(ctx, args[1:], flags)
				if err != nil {
					return err
				}
				absPaths(ds.Files)
				d := &state.Dataset{Name: name, Kind: ds.Kind(), Files: ds.Files}
				if err := store.SaveDataset(ctx, d); err != nil {
					return err
				}
				c.Renderer.Success(fmt.Sprintf("saved %s (%s)", name, output.Count(len(d.Files), "file")))
				return nil
			})
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

func validateDatasetName(name string) error {
	if name == "" || strings.HasPrefix(name, "@") || strings.ContainsAny(name, " \t\n/") {
		return fmt.Errorf("invalid dataset name %q", name)
	}
	return nil
}

func newDatasetsShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show a saved dataset and its bookmarks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, c *CommandContext, store *state.SQLiteStore) error {
				d, err := getDataset(ctx, store, args[0])
				if err != nil {
					return err
				}
				marks, err := store.ListBookmarks(ctx, d.ID)
				if err != nil {
					return err
				}
				return renderDataset(c.Renderer, d, marks)
			})
		},
	}
}

func getDataset(ctx context.Context, store *state.SQLiteStore, name string) (*state.Dataset, error) {
	d, err := store.GetDataset(ctx, strings.TrimPrefix(name, "@"))
	if errors.Is(err, state.ErrNotFound) {
		return nil, fmt.Errorf("no saved dataset named %q", name)
	}
	return d, err
}

func renderDataset(r *output.Renderer, d *state.Dataset, marks []*state.Bookmark) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(struct {
			*state.Dataset
			Bookmarks []*state.Bookmark `json:"bookmarks"`
		}{d, marks})
	}

	r.Header(1, d.Name)
	r.KeyValue("Kind", string(d.Kind))
	r.KeyValue("Created", d.CreatedAt.Local().Format(time.DateTime))
	r.KeyValue("Updated", d.UpdatedAt.Local().Format(time.DateTime))
	r.Println()

	r.Header(2, "Files")
	rows := make([][]string, len(d.Files))
	for i, f := range d.Files {
		rows[i] = []string{fileLabel(f.Path, f.Table), string(f.Type), strconv.Itoa(len(f.SelectedColumns)), typeOverrides(f.ColumnTypes)}
	}
	if err := r.Table([]string{"file", "type", "columns", "types"}, rows); err != nil {
		return err
	}

	if len(marks) == 0 {
		return nil
	}
	r.Println()
	r.Header(2, "Bookmarks")
	return r.Table([]string{"name", "position", "range end"}, bookmarkRows(marks))
}

func typeOverrides[T fmt.Stringer](types map[string]T) string {
	parts := make([]string, 0, len(types))
	for name, t := range types {
		parts = append(parts, name+"="+t.String())
	}
	slices.Sort(parts)
	return strings.Join(parts, ", ")
}

func bookmarkRows(marks []*state.Bookmark) [][]string {
	rows := make([][]string, 0, len(marks))
	for _, b := range marks {
		end := ""
		if b.RangeEnd != nil {
			end = describePosition(*b.RangeEnd)
		}
		rows = append(rows, []string{b.Name, describePosition(b.Position), end})
	}
	return rows
}

func newDatasetsDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <name>",
		Aliases: []string{"rm"},
		Short:   "Delete a saved dataset and its bookmarks",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, c *CommandContext, store *state.SQLiteStore) error {
				name := strings.TrimPrefix(args[0], "@")
				if err := store.DeleteDataset(ctx, name); err != nil {
					if errors.Is(err, state.ErrNotFound) {
						return fmt.Errorf("no saved dataset named %q", name)
					}
					return err
				}
				c.Renderer.Success("deleted " + name)
				return nil
			})
		},
	}
}

func newDatasetsExportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "export <name> [manifest]",
		Short: "Write a saved dataset to a manifest file",
		Long: `Write a saved dataset to a manifest that can be shared and opened
with any leapview command. The default file is <name>.leapview.yaml.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, c *CommandContext, store *state.SQLiteStore) error {
				d, err := getDataset(ctx, store, args[0])
				if err != nil {
					return err
				}
				path := d.Name + sharedcfg.ManifestSuffix
				if len(args) == 2 {
					path = args[1]
				}
				m := &sharedcfg.Manifest{Name: d.Name, Files: d.Files}
				if d.Kind == state.DatasetTable && c.Cfg.Target != nil && d.Files[0].Adapter == c.Cfg.Target.Type {
					m.Target = c.Cfg.Target.Clone()
				}
				if err := sharedcfg.SaveManifest(path, m); err != nil {
					return err
				}
				c.Renderer.Success(fmt.Sprintf("wrote %s", path))
				return nil
			})
		},
	}
}

func newDatasetsImportCommand() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "import <manifest>",
		Short: "Save the dataset described by a manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, c *CommandContext, store *state.SQLiteStore) error {
				m, err := sharedcfg.LoadManifest(args[0])
				if err != nil {
					return err
				}
				if name == "" {
					name = m.Name
				}
				if err := validateDatasetName(name); err != nil {
					return err
				}
				ds := &dataset{Name: name, Files: m.FileConfigs()}
				if err := store.SaveDataset(ctx, &state.Dataset{Name: name, Kind: ds.Kind(), Files: ds.Files}); err != nil {
					return err
				}
				c.Renderer.Success("imported " + name)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Dataset name (default: the manifest name)")
	return cmd
}
