// Package combined presents several sources as one, stacking their rows in
// configuration order under a merged schema.
package combined

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/leapview/pkg/navigation"
	"github.com/leapstack-labs/leapview/pkg/source"
	"github.com/leapstack-labs/leapview/pkg/sources/delimited"
)

// SourceFileColumn names the column tagging each row with its origin.
const SourceFileColumn = "_source_file"

// DefaultParallelism bounds how many files Open analyzes at once.
const DefaultParallelism = 4

// Part is one member of a combined source.
type Part struct {
	// Name is written to SourceFileColumn for each of the part's rows.
	Name   string
	Source source.DataSource
}

// Source stacks the rows of its parts.
type Source struct {
	parts []Part
	// offsets[i] is the global index of part i's first row; offsets[len(parts)] is the total.
	offsets []int
	schema  *arrow.Schema
	// fieldIdx[p][f] is the column of part p feeding merged field f, or -1.
	fieldIdx [][]int
	widened  []bool
	mem      memory.Allocator
	window   int
	logger   *slog.Logger
}

var _ source.DataSource = (*Source)(nil)

// Options tunes Open.
type Options struct {
	delimited.Options
	// Parallelism bounds concurrent file analysis.
	Parallelism int
}

// Open analyzes every file concurrently and combines them in the order given.
// If any file fails, the ones already opened are closed.
func Open(ctx context.Context, cfgs []*source.FileConfig, opts Options) (*Source, error) {
	if len(cfgs) == 0 {
		return nil, source.NewError(source.KindSource, "combined", "no files to combine", nil)
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = DefaultParallelism
	}

	opened := make([]*delimited.Source, len(cfgs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Parallelism)
	for i, cfg := range cfgs {
		g.Go(func() error {
			src, err := delimited.Open(gctx, cfg, opts.Options)
			if err != nil {
				return err
			}
			opened[i] = src
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, src := range opened {
			if src != nil {
				_ = src.Close()
			}
		}
		return nil, err
	}

	parts := make([]Part, len(opened))
	for i, src := range opened {
		parts[i] = Part{Name: src.SourceName(), Source: src}
	}
	return New(ctx, parts, opts.Options)
}

// New combines already opened sources.
func New(ctx context.Context, parts []Part, opts delimited.Options) (*Source, error) {
	if len(parts) == 0 {
		return nil, source.NewError(source.KindSource, "combined", "no sources to combine", nil)
	}
	s := &Source{
		parts:   parts,
		offsets: make([]int, len(parts)+1),
		mem:     opts.Allocator,
		window:  opts.WindowSize,
		logger:  opts.Logger,
	}
	if s.mem == nil {
		s.mem = memory.DefaultAllocator
	}
	if s.window <= 0 {
		s.window = source.DefaultWindowSize
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}

	for i, p := range parts {
		n, err := p.Source.RowCount(ctx)
		if err != nil {
			return nil, fmt.Errorf("counting rows of %s: %w", p.Name, err)
		}
		s.offsets[i+1] = s.offsets[i] + n
	}
	s.merge()

	s.logger.Info("combined sources",
		slog.Int("sources", len(parts)),
		slog.Int("rows", s.offsets[len(parts)]),
		slog.Int("columns", s.schema.NumFields()))
	return s, nil
}

// merge builds the union schema. Columns keep first-seen order; a name
// seen with different types is widened to text. Columns absent from any
// part are nullable.
func (s *Source) merge() {
	type merged struct {
		field   arrow.Field
		widened bool
		seen    int
	}
	var order []string
	byName := make(map[string]*merged)
	for _, p := range s.parts {
		for _, f := range p.Source.Schema().Fields() {
			m, ok := byName[f.Name]
			if !ok {
				byName[f.Name] = &merged{field: f, seen: 1}
				order = append(order, f.Name)
				continue
			}
			m.seen++
			if !arrow.TypeEqual(m.field.Type, f.Type) {
				m.field.Type = arrow.BinaryTypes.String
				m.field.Nullable = true
				m.widened = true
			} else if f.Nullable {
				m.field.Nullable = true
			}
		}
	}

	fields := make([]arrow.Field, 0, len(order)+1)
	fields = append(fields, arrow.Field{Name: SourceFileColumn, Type: arrow.BinaryTypes.String})
	s.widened = make([]bool, len(order)+1)
	for i, name := range order {
		m := byName[name]
		if m.seen < len(s.parts) {
			m.field.Nullable = true
		}
		fields = append(fields, m.field)
		s.widened[i+1] = m.widened
	}
	s.schema = arrow.NewSchema(fields, nil)

	s.fieldIdx = make([][]int, len(s.parts))
	for p, part := range s.parts {
		idx := make([]int, len(fields))
		ps := part.Source.Schema()
		for f := range fields {
			idx[f] = -1
			if f == 0 {
				continue
			}
			if found := ps.FieldIndices(fields[f].Name); len(found) > 0 {
				idx[f] = found[0]
			}
		}
		s.fieldIdx[p] = idx
	}
}

// Schema implements source.DataSource.
func (s *Source) Schema() *arrow.Schema { return s.schema }

// Parts returns the combined sources in order.
func (s *Source) Parts() []Part { return s.parts }

// SourceName implements source.DataSource.
func (s *Source) SourceName() string {
	return fmt.Sprintf("Combined (%d files)", len(s.parts))
}

// RowCount implements source.DataSource.
func (s *Source) RowCount(context.Context) (int, error) {
	return s.offsets[len(s.parts)], nil
}

// NavigationSpec implements source.DataSource. A combined source is
// always row-indexed.
func (s *Source) NavigationSpec(ctx context.Context) (navigation.Spec, error) {
	n, _ := s.RowCount(ctx)
	return navigation.Spec{Mode: navigation.SequentialMode(), TotalRows: n}, nil
}

// Locate maps a global row to its part and local row.
func (s *Source) Locate(row int) (part, local int, ok bool) {
	for i := range s.parts {
		if row >= s.offsets[i] && row < s.offsets[i+1] {
			return i, row - s.offsets[i], true
		}
	}
	return 0, 0, false
}

// QueryAt implements source.DataSource.
func (s *Source) QueryAt(ctx context.Context, pos navigation.Position) (arrow.Record, error) {
	row, err := source.SequentialRow(pos)
	if err != nil {
		return nil, err
	}
	n, _ := s.RowCount(ctx)
	start, end := source.Window(row, n, s.window)
	return s.readRows(ctx, start, end)
}

// QueryRange implements source.DataSource.
func (s *Source) QueryRange(ctx context.Context, r navigation.Range) (arrow.Record, error) {
	n, _ := s.RowCount(ctx)
	start, end, err := source.ResolveRange(r, n, source.SequentialRow)
	if err != nil {
		return nil, err
	}
	return s.readRows(ctx, start, end)
}

// QueryAll implements source.DataSource.
func (s *Source) QueryAll(ctx context.Context) (arrow.Record, error) {
	n, _ := s.RowCount(ctx)
	return s.readRows(ctx, 0, n)
}

func (s *Source) readRows(ctx context.Context, start, end int) (arrow.Record, error) {
	var batches []arrow.Record
	defer func() {
		for _, b := range batches {
			b.Release()
		}
	}()
	for p, part := range s.parts {
		lo := max(start, s.offsets[p])
		hi := min(end, s.offsets[p+1])
		if lo >= hi {
			continue
		}
		rec, err := part.Source.QueryRange(ctx, navigation.Range{
			Start: navigation.Sequential(lo - s.offsets[p]),
			End:   navigation.Sequential(hi - s.offsets[p]),
		})
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", part.Name, err)
		}
		out, err := s.conform(p, rec)
		rec.Release()
		if err != nil {
			return nil, err
		}
		batches = append(batches, out)
	}
	return source.Concat(s.mem, s.schema, batches)
}

// conform projects a batch of part p into the merged schema.
func (s *Source) conform(p int, rec arrow.Record) (arrow.Record, error) {
	n := int(rec.NumRows())
	cols := make([]arrow.Array, s.schema.NumFields())
	defer func() {
		for _, c := range cols {
			if c != nil {
				c.Release()
			}
		}
	}()

	tag := array.NewStringBuilder(s.mem)
	tag.Reserve(n)
	for range n {
		tag.Append(s.parts[p].Name)
	}
	cols[0] = tag.NewArray()
	tag.Release()

	for f := 1; f < len(cols); f++ {
		src := s.fieldIdx[p][f]
		switch {
		case src < 0:
			cols[f] = array.MakeArrayOfNull(s.mem, s.schema.Field(f).Type, n)
		case s.widened[f]:
			cols[f] = asText(s.mem, rec.Column(src))
		default:
			c := rec.Column(src)
			if c.Len() != n {
				return nil, source.NewError(source.KindBatch, s.parts[p].Name,
					fmt.Sprintf("column %s has %d rows, batch has %d", s.schema.Field(f).Name, c.Len(), n), nil)
			}
			c.Retain()
			cols[f] = c
		}
	}
	return array.NewRecord(s.schema, cols, int64(n)), nil
}

// asText renders arr as strings, keeping nulls.
func asText(mem memory.Allocator, arr arrow.Array) arrow.Array {
	b := array.NewStringBuilder(mem)
	defer b.Release()
	b.Reserve(arr.Len())
	for i := range arr.Len() {
		if arr.IsNull(i) {
			b.AppendNull()
			continue
		}
		b.Append(arr.ValueStr(i))
	}
	return b.NewArray()
}

// Close closes every part that can be closed.
func (s *Source) Close() error {
	var errs []error
	for _, p := range s.parts {
		if c, ok := p.Source.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
