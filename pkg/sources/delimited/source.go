// Package delimited reads delimited text files (CSV, TSV and friends) as a
// position-addressable source.
//
// Opening a file runs an analysis pass that samples rows for type
// inference and scans the rest for an exact row count. Reads decode fixed
// size chunks on demand and keep recent chunks in a bounded cache.
package delimited

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/leapstack-labs/leapview/pkg/cache"
	"github.com/leapstack-labs/leapview/pkg/index"
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

// Source is a delimited file opened against a FileConfig. It is immutable
// after Open apart from its chunk cache.
type Source struct {
	cfg    *source.FileConfig
	opts   Options
	delim  rune
	header []string
	// cols holds the file positions of the selected columns, in file order.
	cols   []int
	info   *schema.Info
	schema *arrow.Schema
	rows   int
	times  *index.TimeIndex
	chunks *cache.ChunkCache
}

var _ source.DataSource = (*Source)(nil)

// Open analyzes the file described by cfg and returns a ready source.
// The analysis runs on opts.Pool and honors ctx cancellation.
func Open(ctx context.Context, cfg *source.FileConfig, opts Options) (*Source, error) {
	opts.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, source.NewError(source.KindSource, cfg.FileName(), "invalid configuration", err)
	}
	if len(cfg.SelectedColumns) == 0 {
		return nil, source.NewError(source.KindSource, cfg.FileName(), "", source.ErrNoColumns)
	}

	s := &Source{
		cfg:  cfg.Clone(),
		opts: opts,
		chunks: cache.NewChunkCache(opts.MaxChunks,
			cache.WithMemoryManager(opts.Memory),
			cache.WithLogger(opts.Logger)),
	}

	start := time.Now()
	if err := opts.Pool.Do(ctx, func() error { return s.analyze(ctx) }); err != nil {
		return nil, err
	}
	opts.Logger.Info("analyzed delimited file",
		slog.String("path", cfg.Path),
		slog.Int("rows", s.rows),
		slog.Int("columns", len(s.cols)),
		slog.String("navigation_column", s.info.NavigationColumn),
		slog.Duration("elapsed", time.Since(start)))
	return s, nil
}

func (s *Source) analyze(ctx context.Context) error {
	name := s.cfg.FileName()
	delim, err := delimiterOf(s.cfg)
	if err != nil {
		return source.NewError(source.KindIO, name, "sniffing delimiter", err)
	}
	s.delim = delim

	r, err := openReader(s.cfg.Path, delim)
	if err != nil {
		return source.NewError(source.KindIO, name, "opening file", err)
	}
	defer func() { _ = r.Close() }()

	if s.header, err = r.readHeader(ctx, s.cfg.HeaderLine); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return source.NewError(source.KindSchemaDetection, name, "reading header", err)
	}
	if err := s.project(); err != nil {
		return err
	}

	limit := s.cfg.EffectiveSampleSize()
	sample := make([][]string, 0, min(limit, 1024))
	for len(sample) < limit {
		rec, err := r.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return source.NewError(source.KindIO, name, "sampling rows", err)
		}
		sample = append(sample, s.pick(rec))
	}

	s.detect(sample)
	timeCol := s.timeColumn()
	if timeCol >= 0 {
		s.times = index.NewTimeIndex(len(sample))
		for i, row := range sample {
			s.indexTime(row[timeCol], i)
		}
	}

	rows := len(sample)
	if len(sample) == limit {
		for {
			if rows%source.CancelCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			rec, err := r.next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return source.NewError(source.KindIO, name, "counting rows", err)
			}
			if timeCol >= 0 && s.cols[timeCol] < len(rec) {
				s.indexTime(rec[s.cols[timeCol]], rows)
			}
			rows++
		}
	}
	s.rows = rows
	return nil
}

// project resolves the selected columns against the header, keeping file order.
func (s *Source) project() error {
	for _, want := range s.cfg.SelectedColumns {
		if !slices.Contains(s.header, want) {
			return source.NewError(source.KindSchemaDetection, s.cfg.FileName(),
				fmt.Sprintf("column %q not found", want), nil)
		}
	}
	seen := make(map[string]bool, len(s.header))
	for i, h := range s.header {
		if s.cfg.IsSelected(h) && !seen[h] {
			seen[h] = true
			s.cols = append(s.cols, i)
		}
	}
	return nil
}

// pick copies the selected cells of rec.
func (s *Source) pick(rec []string) []string {
	out := make([]string, len(s.cols))
	for i, c := range s.cols {
		if c < len(rec) {
			out[i] = rec[c]
		}
	}
	return out
}

func (s *Source) detect(sample [][]string) {
	names := make([]string, len(s.cols))
	for i, c := range s.cols {
		names[i] = s.header[c]
	}
	info := schema.NewDetector(s.cfg.Nulls).Detect(names, sample)
	for i := range info.Columns {
		col := &info.Columns[i]
		if declared := s.cfg.ColumnType(col.Name, col.Type); declared != col.Type {
			col.Type = declared
			col.Nullable = true
		}
	}
	info.NavigationColumn = schema.SuggestNavigation(info.Columns)
	s.info = info
	s.schema = info.ArrowSchema()
}

// timeColumn returns the projected index of the column feeding the time
// index: the navigation column when it is a timestamp, otherwise the first
// timestamp column.
func (s *Source) timeColumn() int {
	first := -1
	for i, c := range s.info.Columns {
		if c.Type != schema.Timestamp {
			continue
		}
		if c.Name == s.info.NavigationColumn {
			return i
		}
		if first < 0 {
			first = i
		}
	}
	return first
}

func (s *Source) indexTime(raw string, row int) {
	if s.cfg.Nulls.IsNull(raw) {
		return
	}
	if ts, ok := schema.ParseTimestamp(raw); ok {
		s.times.Add(ts, row)
	}
}

// Schema implements source.DataSource.
func (s *Source) Schema() *arrow.Schema { return s.schema }

// Info returns the detected schema with column statistics.
func (s *Source) Info() *schema.Info { return s.info }

// Config returns a copy of the configuration the source was opened with.
func (s *Source) Config() *source.FileConfig { return s.cfg.Clone() }

// Delimiter returns the delimiter in use.
func (s *Source) Delimiter() rune { return s.delim }

// SourceName implements source.DataSource.
func (s *Source) SourceName() string { return s.cfg.FileName() }

// RowCount implements source.DataSource.
func (s *Source) RowCount(context.Context) (int, error) { return s.rows, nil }

// NavigationSpec implements source.DataSource.
func (s *Source) NavigationSpec(context.Context) (navigation.Spec, error) {
	spec := navigation.Spec{Mode: navigation.SequentialMode(), TotalRows: s.rows}
	if s.info.HasTimestamp() {
		spec.Mode = navigation.TemporalMode()
		if s.times != nil {
			if b, ok := s.times.Bounds(); ok {
				spec.TemporalBounds = &b
			}
		}
	}
	return spec, nil
}

// CacheStats returns the chunk cache counters.
func (s *Source) CacheStats() cache.Stats { return s.chunks.Stats() }

// Close drops every cached chunk.
func (s *Source) Close() error {
	s.chunks.Clear()
	return nil
}

func (s *Source) rowAt(pos navigation.Position) (int, error) {
	if pos.Kind == navigation.KindTemporal {
		if s.times == nil {
			return 0, fmt.Errorf("%w: %s has no timestamp column", source.ErrInvalidPosition, s.SourceName())
		}
		row, _ := s.times.Floor(pos.Timestamp)
		return row, nil
	}
	return source.SequentialRow(pos)
}

func (s *Source) rangeBound(pos navigation.Position) (int, error) {
	if pos.Kind == navigation.KindTemporal {
		if s.times == nil {
			return 0, fmt.Errorf("%w: %s has no timestamp column", source.ErrInvalidPosition, s.SourceName())
		}
		if row, ok := s.times.Ceil(pos.Timestamp); ok {
			return row, nil
		}
		return s.rows, nil
	}
	return source.SequentialRow(pos)
}

// QueryAt implements source.DataSource.
func (s *Source) QueryAt(ctx context.Context, pos navigation.Position) (arrow.Record, error) {
	row, err := s.rowAt(pos)
	if err != nil {
		return nil, err
	}
	start, end := source.Window(row, s.rows, s.opts.WindowSize)
	return s.readRows(ctx, start, end)
}

// QueryRange implements source.DataSource. Temporal ranges select the rows
// whose timestamps fall in [start, end), assuming time-sorted rows.
func (s *Source) QueryRange(ctx context.Context, r navigation.Range) (arrow.Record, error) {
	start, end, err := source.ResolveRange(r, s.rows, s.rangeBound)
	if err != nil {
		return nil, err
	}
	return s.readRows(ctx, start, end)
}

// QueryAll implements source.DataSource.
func (s *Source) QueryAll(ctx context.Context) (arrow.Record, error) {
	return s.readRows(ctx, 0, s.rows)
}

// readRows assembles [start, end) from cached chunks.
func (s *Source) readRows(ctx context.Context, start, end int) (arrow.Record, error) {
	return source.ReadChunked(ctx, s.opts.Allocator, s.schema, s.chunks, s.opts.ChunkSize, start, end, s.loadChunk)
}

func (s *Source) loadChunk(ctx context.Context, id int) (arrow.Record, error) {
	start := id * s.opts.ChunkSize
	count := min(s.opts.ChunkSize, s.rows-start)
	return source.Run(ctx, s.opts.Pool, func() (arrow.Record, error) {
		return s.decode(ctx, start, count)
	})
}

// decode reopens the file and decodes count rows starting at row start.
func (s *Source) decode(ctx context.Context, start, count int) (arrow.Record, error) {
	name := s.SourceName()
	r, err := openReader(s.cfg.Path, s.delim)
	if err != nil {
		return nil, source.NewError(source.KindIO, name, "opening file", err)
	}
	defer func() { _ = r.Close() }()

	if err := r.skip(ctx, s.cfg.HeaderLine+1+start); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, source.NewError(source.KindIO, name, fmt.Sprintf("seeking to row %d", start), err)
	}

	b := source.NewTextBuilder(s.opts.Allocator, s.schema, s.cfg.Nulls)
	defer b.Release()
	cells := make([]string, len(s.cols))
	for i := range count {
		if i%source.CancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec, err := r.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, source.NewError(source.KindIO, name, "reading rows", err)
		}
		for j, c := range s.cols {
			cells[j] = ""
			if c < len(rec) {
				cells[j] = rec[c]
			}
		}
		b.Append(cells)
	}
	s.opts.Logger.Debug("decoded chunk",
		slog.String("source", name),
		slog.Int("start", start),
		slog.Int("rows", b.Len()))
	return b.NewRecord(), nil
}
