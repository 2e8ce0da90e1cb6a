// Package table exposes a database table as a position-addressable source.
//
// Tables are reached through the adapter registry. The row count is probed
// once at open time and reads page through the table with LIMIT/OFFSET,
// one cached chunk at a time.
package table

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/leapstack-labs/leapview/pkg/adapter"
	"github.com/leapstack-labs/leapview/pkg/cache"
	"github.com/leapstack-labs/leapview/pkg/navigation"
	"github.com/leapstack-labs/leapview/pkg/schema"
	"github.com/leapstack-labs/leapview/pkg/source"
)

// Options tunes a Source. Zero values select defaults.
type Options struct {
	Logger     *slog.Logger
	Allocator  memory.Allocator
	Pool       *source.WorkPool
	Memory     *cache.MemoryManager
	ChunkSize  int
	MaxChunks  int
	WindowSize int

	// Connection overrides the adapter config derived from the FileConfig
	// (Adapter as type, Path as database path).
	Connection *adapter.Config
}

func (o *Options) applyDefaults() {
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	if o.Allocator == nil {
		o.Allocator = memory.DefaultAllocator
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = cache.DefaultChunkSize
	}
	if o.MaxChunks <= 0 {
		o.MaxChunks = cache.DefaultMaxChunks
	}
	if o.WindowSize <= 0 {
		o.WindowSize = source.DefaultWindowSize
	}
}

// Source is one table of a database.
type Source struct {
	cfg    *source.FileConfig
	opts   Options
	db     adapter.Adapter
	owned  bool
	cols   []adapter.Column
	info   *schema.Info
	schema *arrow.Schema
	rows   int
	// timeCol is the column temporal positions resolve against, or "".
	timeCol string
	bounds  *navigation.Bounds
	chunks  *cache.ChunkCache
	selectQ string
}

var _ source.DataSource = (*Source)(nil)

// Open connects through the adapter registry and opens cfg.Table. The
// connection is closed with the source.
func Open(ctx context.Context, cfg *source.FileConfig, opts Options) (*Source, error) {
	opts.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, source.NewError(source.KindSource, cfg.FileName(), "invalid configuration", err)
	}

	conn := adapter.Config{Type: cfg.Adapter, Path: cfg.Path}
	if opts.Connection != nil {
		conn = *opts.Connection
	}
	db, err := adapter.NewAdapter(conn, opts.Logger)
	if err != nil {
		return nil, source.NewError(source.KindSource, cfg.FileName(), "resolving adapter", err)
	}
	if err := db.Connect(ctx, conn); err != nil {
		return nil, source.NewError(source.KindIO, cfg.FileName(), "connecting", err)
	}

	s, err := New(ctx, db, cfg, opts)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// New opens cfg.Table on an already connected adapter. The caller keeps
// ownership of db.
func New(ctx context.Context, db adapter.Adapter, cfg *source.FileConfig, opts Options) (*Source, error) {
	opts.applyDefaults()
	s := &Source{
		cfg:  cfg.Clone(),
		opts: opts,
		db:   db,
		chunks: cache.NewChunkCache(opts.MaxChunks,
			cache.WithMemoryManager(opts.Memory),
			cache.WithLogger(opts.Logger)),
	}

	start := time.Now()
	if err := opts.Pool.Do(ctx, func() error { return s.analyze(ctx) }); err != nil {
		return nil, err
	}
	opts.Logger.Info("analyzed table",
		slog.String("table", cfg.Table),
		slog.Int("rows", s.rows),
		slog.Int("columns", len(s.cols)),
		slog.String("time_column", s.timeCol),
		slog.Duration("elapsed", time.Since(start)))
	return s, nil
}

func (s *Source) analyze(ctx context.Context) error {
	name := s.SourceName()
	meta, err := s.db.GetTableMetadata(ctx, s.cfg.Table)
	if err != nil {
		return source.NewError(source.KindSchemaDetection, name, "reading table metadata", err)
	}
	if err := s.project(meta.Columns); err != nil {
		return err
	}

	s.info = &schema.Info{Columns: make([]schema.Column, len(s.cols))}
	for i, c := range s.cols {
		s.info.Columns[i] = schema.Column{
			Name:     c.Name,
			Type:     s.cfg.ColumnType(c.Name, MapType(c.Type)),
			Nullable: true,
		}
	}
	s.info.NavigationColumn = schema.SuggestNavigation(s.info.Columns)
	s.schema = s.info.ArrowSchema()

	names := make([]string, len(s.cols))
	for i, c := range s.cols {
		names[i] = s.db.QuoteIdent(c.Name)
	}
	//nolint:gosec // identifiers are quoted by the adapter
	s.selectQ = fmt.Sprintf("SELECT %s FROM %s LIMIT %s OFFSET %s",
		strings.Join(names, ", "), s.db.QuoteIdent(s.cfg.Table), s.db.Placeholder(1), s.db.Placeholder(2))

	// One probe for the count; metadata counts can be estimates.
	var n int64
	if err := s.queryRow(ctx, "SELECT COUNT(*) FROM "+s.db.QuoteIdent(s.cfg.Table)).Scan(&n); err != nil {
		return source.NewError(source.KindSource, name, "counting rows", err)
	}
	s.rows = int(n)

	for _, c := range s.info.Columns {
		if c.Type == schema.Int64 && IsTimeLike(c.Name) {
			s.timeCol = c.Name
			break
		}
	}
	if s.timeCol != "" {
		if err := s.loadBounds(ctx); err != nil {
			return source.NewError(source.KindSource, name, "reading time bounds", err)
		}
	}
	return nil
}

// project keeps the selected columns in table order; an empty selection
// keeps every column.
func (s *Source) project(cols []adapter.Column) error {
	if len(s.cfg.SelectedColumns) == 0 {
		s.cols = cols
		return nil
	}
	for _, want := range s.cfg.SelectedColumns {
		if !slices.ContainsFunc(cols, func(c adapter.Column) bool { return c.Name == want }) {
			return source.NewError(source.KindSchemaDetection, s.SourceName(),
				fmt.Sprintf("column %q not found", want), nil)
		}
	}
	for _, c := range cols {
		if s.cfg.IsSelected(c.Name) {
			s.cols = append(s.cols, c)
		}
	}
	return nil
}

func (s *Source) loadBounds(ctx context.Context) error {
	col := s.db.QuoteIdent(s.timeCol)
	//nolint:gosec // identifiers are quoted by the adapter
	q := fmt.Sprintf("SELECT MIN(%s), MAX(%s) FROM %s", col, col, s.db.QuoteIdent(s.cfg.Table))
	var lo, hi sql.NullInt64
	if err := s.queryRow(ctx, q).Scan(&lo, &hi); err != nil {
		return err
	}
	if lo.Valid && hi.Valid {
		s.bounds = &navigation.Bounds{Min: lo.Int64, Max: hi.Int64}
	}
	return nil
}

type scanner interface{ Scan(dest ...any) error }

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

func (s *Source) queryRow(ctx context.Context, q string, args ...any) scanner {
	row, err := s.db.QueryRow(ctx, q, args...)
	if err != nil {
		return errRow{err}
	}
	return row
}

// Schema implements source.DataSource.
func (s *Source) Schema() *arrow.Schema { return s.schema }

// Info returns the mapped schema.
func (s *Source) Info() *schema.Info { return s.info }

// TimeColumn returns the column temporal positions resolve against.
func (s *Source) TimeColumn() string { return s.timeCol }

// SourceName implements source.DataSource.
func (s *Source) SourceName() string {
	return s.cfg.Table
}

// RowCount implements source.DataSource.
func (s *Source) RowCount(context.Context) (int, error) { return s.rows, nil }

// NavigationSpec implements source.DataSource.
func (s *Source) NavigationSpec(context.Context) (navigation.Spec, error) {
	spec := navigation.Spec{Mode: navigation.SequentialMode(), TotalRows: s.rows}
	if s.timeCol != "" {
		spec.Mode = navigation.TemporalMode()
		spec.TemporalBounds = s.bounds
	}
	return spec, nil
}

// CacheStats returns the chunk cache counters.
func (s *Source) CacheStats() cache.Stats { return s.chunks.Stats() }

// Close drops cached chunks and closes the connection if Open created it.
func (s *Source) Close() error {
	s.chunks.Clear()
	if s.owned {
		return s.db.Close()
	}
	return nil
}

// rowAt resolves a position to the number of rows before it.
func (s *Source) rowAt(ctx context.Context, pos navigation.Position) (int, error) {
	if pos.Kind != navigation.KindTemporal {
		return source.SequentialRow(pos)
	}
	if s.timeCol == "" {
		return 0, fmt.Errorf("%w: %s has no time column", source.ErrInvalidPosition, s.SourceName())
	}
	//nolint:gosec // identifiers are quoted by the adapter
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s < %s",
		s.db.QuoteIdent(s.cfg.Table), s.db.QuoteIdent(s.timeCol), s.db.Placeholder(1))
	var n int64
	if err := s.queryRow(ctx, q, pos.Timestamp).Scan(&n); err != nil {
		return 0, source.NewError(source.KindSource, s.SourceName(), "resolving timestamp", err)
	}
	return int(n), nil
}

// QueryAt implements source.DataSource.
func (s *Source) QueryAt(ctx context.Context, pos navigation.Position) (arrow.Record, error) {
	row, err := s.rowAt(ctx, pos)
	if err != nil {
		return nil, err
	}
	start, end := source.Window(row, s.rows, s.opts.WindowSize)
	return s.readRows(ctx, start, end)
}

// QueryRange implements source.DataSource.
func (s *Source) QueryRange(ctx context.Context, r navigation.Range) (arrow.Record, error) {
	start, end, err := source.ResolveRange(r, s.rows, func(p navigation.Position) (int, error) {
		return s.rowAt(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return s.readRows(ctx, start, end)
}

// QueryAll implements source.DataSource.
func (s *Source) QueryAll(ctx context.Context) (arrow.Record, error) {
	return s.readRows(ctx, 0, s.rows)
}

func (s *Source) readRows(ctx context.Context, start, end int) (arrow.Record, error) {
	return source.ReadChunked(ctx, s.opts.Allocator, s.schema, s.chunks, s.opts.ChunkSize, start, end, s.loadChunk)
}

func (s *Source) loadChunk(ctx context.Context, id int) (arrow.Record, error) {
	offset := id * s.opts.ChunkSize
	limit := min(s.opts.ChunkSize, s.rows-offset)
	return source.Run(ctx, s.opts.Pool, func() (arrow.Record, error) {
		return s.fetch(ctx, offset, limit)
	})
}

// fetch pages limit rows starting at offset into a record.
func (s *Source) fetch(ctx context.Context, offset, limit int) (arrow.Record, error) {
	name := s.SourceName()
	rows, err := s.db.Query(ctx, s.selectQ, limit, offset)
	if err != nil {
		return nil, source.NewError(source.KindSource, name, fmt.Sprintf("reading rows at offset %d", offset), err)
	}
	defer func() { _ = rows.Close() }()

	rb := array.NewRecordBuilder(s.opts.Allocator, s.schema)
	defer rb.Release()

	vals := make([]any, len(s.cols))
	ptrs := make([]any, len(s.cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	n := 0
	for rows.Next() {
		if n%source.CancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, source.NewError(source.KindSource, name, "scanning row", err)
		}
		for i, v := range vals {
			source.AppendValue(rb.Field(i), v)
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return nil, source.NewError(source.KindSource, name, "iterating rows", err)
	}
	s.opts.Logger.Debug("fetched chunk",
		slog.String("source", name),
		slog.Int("offset", offset),
		slog.Int("rows", n))
	return rb.NewRecord(), nil
}
