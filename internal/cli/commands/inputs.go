package commands

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	sharedcfg "github.com/leapstack-labs/leapview/internal/config"
	"github.com/leapstack-labs/leapview/internal/session"
	"github.com/leapstack-labs/leapview/internal/state"
	"github.com/leapstack-labs/leapview/pkg/adapter"
	"github.com/leapstack-labs/leapview/pkg/schema"
	"github.com/leapstack-labs/leapview/pkg/source"
)

// sourceFlags are the flags shared by commands that open data.
type sourceFlags struct {
	columns []string
	types   map[string]string
	table   string
	adapter string
}

func (f *sourceFlags) register(fs *pflag.FlagSet) {
	fs.StringSliceVarP(&f.columns, "columns", "c", nil, "Columns to load (default: all)")
	fs.StringToStringVar(&f.types, "type", nil, "Declare a column type, e.g. --type ts=timestamp")
	fs.StringVar(&f.table, "table", "", "Table to read from a database file or the configured target")
	fs.StringVar(&f.adapter, "adapter", "", "Database adapter for --table (sqlite, duckdb, postgres)")
}

// dataset is what a command's arguments resolved to.
type dataset struct {
	Name  string
	Files []*source.FileConfig
	// Conn is the database for table-backed files, when not implied by the file.
	Conn *adapter.Config
	// Stored is set when the dataset came from the catalog.
	Stored *state.Dataset
}

// Kind classifies the dataset for the catalog.
func (d *dataset) Kind() state.DatasetKind {
	switch {
	case len(d.Files) > 1:
		return state.DatasetCombined
	case len(d.Files) == 1 && d.Files[0].Type == source.FileTypeTable:
		return state.DatasetTable
	default:
		return state.DatasetDelimited
	}
}

var errNoInput = errors.New("no input: pass data files, a manifest (*.leapview.yaml) or @dataset")

// adapterForPath guesses the adapter of a database file from its extension.
func adapterForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".duckdb", ".ddb":
		return "duckdb"
	default:
		return "sqlite"
	}
}

// resolveDataset turns command arguments into file configurations:
// "@name" loads a saved dataset, a manifest path loads the manifest, and
// anything else is a list of data files. With --table the single argument
// is a database file, or the configured target when there is none.
func (c *CommandContext) resolveDataset(ctx context.Context, args []string, f sourceFlags) (*dataset, error) {
	var ds *dataset
	switch {
	case len(args) == 1 && strings.HasPrefix(args[0], "@"):
		stored, err := c.loadStored(ctx, strings.TrimPrefix(args[0], "@"))
		if err != nil {
			return nil, err
		}
		ds = &dataset{Name: stored.Name, Files: stored.Files, Stored: stored}
	case len(args) == 1 && sharedcfg.IsManifest(args[0]):
		m, err := sharedcfg.LoadManifest(args[0])
		if err != nil {
			return nil, err
		}
		ds = &dataset{Name: m.Name, Files: m.FileConfigs()}
		if m.Target != nil {
			ds.Conn = m.Target.ToAdapterConfig()
		}
	case f.table != "":
		fc, conn, err := c.tableFile(args, f)
		if err != nil {
			return nil, err
		}
		ds = &dataset{Name: f.table, Files: []*source.FileConfig{fc}, Conn: conn}
	case len(args) == 0:
		return nil, errNoInput
	default:
		ds = &dataset{}
		names := make([]string, len(args))
		for i, p := range args {
			ds.Files = append(ds.Files, c.Cfg.NewFileConfig(p))
			names[i] = filepath.Base(p)
		}
		ds.Name = strings.Join(names, "+")
	}

	if ds.Stored == nil {
		if err := applyFlags(ds.Files, f); err != nil {
			return nil, err
		}
	}
	for _, fc := range ds.Files {
		if err := session.PrepareFile(ctx, fc); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

func (c *CommandContext) tableFile(args []string, f sourceFlags) (*source.FileConfig, *adapter.Config, error) {
	fc := &source.FileConfig{
		Type:       source.FileTypeTable,
		Table:      f.table,
		Nulls:      c.Cfg.NullConfig(),
		SampleSize: c.Cfg.SampleSize,
	}
	switch len(args) {
	case 0:
		if c.Cfg.Target == nil {
			return nil, nil, fmt.Errorf("--table needs a database file or a target in %s", sharedcfg.ConfigFileName)
		}
		conn := c.Cfg.Target.ToAdapterConfig()
		fc.Adapter = conn.Type
		fc.Path = c.Cfg.Target.Database
		if f.adapter != "" && f.adapter != conn.Type {
			return nil, nil, fmt.Errorf("--adapter %s does not match the configured target %s", f.adapter, conn.Type)
		}
		return fc, conn, nil
	case 1:
		fc.Path = args[0]
		fc.Adapter = f.adapter
		if fc.Adapter == "" {
			fc.Adapter = adapterForPath(args[0])
		}
		return fc, &adapter.Config{Type: fc.Adapter, Path: fc.Path}, nil
	default:
		return nil, nil, fmt.Errorf("--table reads from one database, got %d arguments", len(args))
	}
}

// applyFlags applies --columns and --type to every file.
func applyFlags(files []*source.FileConfig, f sourceFlags) error {
	for _, fc := range files {
		if len(f.columns) > 0 {
			fc.SelectedColumns = nil
			fc.Select(f.columns...)
		}
		for name, typ := range f.types {
			t, err := schema.ParseDataType(typ)
			if err != nil {
				return fmt.Errorf("--type %s: %w", name, err)
			}
			fc.SetColumnType(name, t)
		}
	}
	return nil
}

func (c *CommandContext) loadStored(ctx context.Context, name string) (*state.Dataset, error) {
	store, err := c.OpenStore(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = store.Close() }()

	d, err := store.GetDataset(ctx, name)
	if errors.Is(err, state.ErrNotFound) {
		return nil, fmt.Errorf("no saved dataset named %q (see: leapview datasets list)", name)
	}
	return d, err
}

// open loads ds into a new session. The caller closes the session.
func (c *CommandContext) open(ctx context.Context, ds *dataset) (*session.Session, source.DataSource, error) {
	sess := c.NewSession(ds.Conn)
	src, err := sess.OpenSource(ctx, ds.Files...)
	if err != nil {
		sess.Close()
		return nil, nil, err
	}
	if err := sess.Load(ctx, src); err != nil {
		sess.Close()
		return nil, nil, err
	}
	return sess, src, nil
}

// absPaths makes local file paths absolute so a saved dataset opens from
// any directory.
func absPaths(files []*source.FileConfig) {
	for _, f := range files {
		if f.Path == "" || f.Path == ":memory:" || filepath.IsAbs(f.Path) {
			continue
		}
		if f.Type == source.FileTypeTable && f.Adapter == "postgres" {
			continue
		}
		if abs, err := filepath.Abs(f.Path); err == nil {
			f.Path = abs
		}
	}
}
