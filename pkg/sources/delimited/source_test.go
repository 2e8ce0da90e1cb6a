package delimited

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapview/internal/testutil"
	"github.com/leapstack-labs/leapview/pkg/cache"
	"github.com/leapstack-labs/leapview/pkg/navigation"
	"github.com/leapstack-labs/leapview/pkg/schema"
	"github.com/leapstack-labs/leapview/pkg/source"
)

func openAll(t *testing.T, path string, opts Options, mutate ...func(*source.FileConfig)) *Source {
	t.Helper()
	cfg := source.NewFileConfig(path)
	for _, m := range mutate {
		m(cfg)
	}
	p, err := ReadPreview(context.Background(), cfg, 5)
	require.NoError(t, err)
	cfg.DetectedColumns = p.Header
	if len(cfg.SelectedColumns) == 0 {
		cfg.SelectAll()
	}
	if opts.Logger == nil {
		opts.Logger = testutil.NewTestLogger(t)
	}
	s, err := Open(context.Background(), cfg, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func numbered(t *testing.T, rows int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("id,label,score\n")
	for i := range rows {
		fmt.Fprintf(&b, "%d,r%d,%d.5\n", i, i, i)
	}
	return testutil.WriteFile(t, "numbered.csv", b.String())
}

func TestOpen_InfersSchema(t *testing.T) {
	path := testutil.WriteLines(t, "basic.csv",
		"id,name,value",
		"1,a,1.5",
		"2,b,N/A",
	)
	s := openAll(t, path, Options{}, func(c *source.FileConfig) { c.SampleSize = 2 })

	sc := s.Schema()
	require.Equal(t, 3, sc.NumFields())
	assert.Equal(t, arrow.PrimitiveTypes.Int64, sc.Field(0).Type)
	assert.Equal(t, arrow.BinaryTypes.String, sc.Field(1).Type)
	assert.Equal(t, arrow.PrimitiveTypes.Float64, sc.Field(2).Type)
	assert.True(t, sc.Field(2).Nullable)
	assert.False(t, sc.Field(0).Nullable)

	value, ok := s.Info().Column("value")
	require.True(t, ok)
	assert.Equal(t, 1, value.Stats.NullCount)
	assert.Equal(t, "id", s.Info().NavigationColumn)
	assert.Equal(t, "basic.csv", s.SourceName())

	n, err := s.RowCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	spec, err := s.NavigationSpec(context.Background())
	require.NoError(t, err)
	assert.Equal(t, navigation.KindSequential, spec.Mode.Kind)
	assert.Equal(t, 2, spec.TotalRows)
	assert.Nil(t, spec.TemporalBounds)
}

func TestOpen_CountsRowsBeyondSample(t *testing.T) {
	path := numbered(t, 2500)
	s := openAll(t, path, Options{}, func(c *source.FileConfig) { c.SampleSize = 100 })
	n, err := s.RowCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2500, n)
}

func TestOpen_Errors(t *testing.T) {
	dir := t.TempDir()
	good := testutil.WriteLines(t, "good.csv", "a,b", "1,2")
	empty := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))

	tests := []struct {
		name string
		cfg  *source.FileConfig
		kind source.Kind
	}{
		{
			name: "missing file",
			cfg:  &source.FileConfig{Path: filepath.Join(dir, "nope.csv"), Delimiter: ",", SelectedColumns: []string{"a"}},
			kind: source.KindIO,
		},
		{
			name: "no columns selected",
			cfg:  &source.FileConfig{Path: good},
			kind: source.KindSource,
		},
		{
			name: "unknown column",
			cfg:  &source.FileConfig{Path: good, SelectedColumns: []string{"zzz"}},
			kind: source.KindSchemaDetection,
		},
		{
			name: "empty file has no header",
			cfg:  &source.FileConfig{Path: empty, SelectedColumns: []string{"a"}},
			kind: source.KindSchemaDetection,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(context.Background(), tt.cfg, Options{})
			require.Error(t, err)
			assert.True(t, source.IsKind(err, tt.kind), "got %v", err)
		})
	}

	_, err := Open(context.Background(), &source.FileConfig{Path: good}, Options{})
	assert.ErrorIs(t, err, source.ErrNoColumns)
}

func TestOpen_ProjectionAndOverrides(t *testing.T) {
	path := testutil.WriteLines(t, "wide.csv",
		"a,b,c,d",
		"1,x,10,true",
		"2,y,20,false",
	)
	s := openAll(t, path, Options{}, func(c *source.FileConfig) {
		c.SelectedColumns = []string{"c", "a"}
		c.SetColumnType("c", schema.Utf8)
	})

	sc := s.Schema()
	require.Equal(t, 2, sc.NumFields())
	assert.Equal(t, "a", sc.Field(0).Name, "projection keeps file order")
	assert.Equal(t, "c", sc.Field(1).Name)
	assert.Equal(t, arrow.BinaryTypes.String, sc.Field(1).Type, "declared type wins")

	rec, err := s.QueryAll(context.Background())
	require.NoError(t, err)
	defer rec.Release()
	assert.EqualValues(t, 2, rec.NumCols())
	assert.Equal(t, "20", rec.Column(1).(*array.String).Value(1))
}

func TestOpen_HeaderLineAndDelimiter(t *testing.T) {
	path := testutil.WriteLines(t, "semi.csv",
		"# exported by logger v2",
		"# units: celsius",
		"site;temp",
		"north;12.5",
		"south;-",
	)
	s := openAll(t, path, Options{}, func(c *source.FileConfig) { c.HeaderLine = 2 })
	assert.Equal(t, ';', s.Delimiter())
	assert.Equal(t, []string{"site", "temp"}, s.Info().Names())

	rec, err := s.QueryAll(context.Background())
	require.NoError(t, err)
	defer rec.Release()
	require.EqualValues(t, 2, rec.NumRows())
	temps := rec.Column(1).(*array.Float64)
	assert.Equal(t, 12.5, temps.Value(0))
	assert.True(t, temps.IsNull(1))
}

func TestOpen_StripsByteOrderMark(t *testing.T) {
	path := testutil.WriteFile(t, "bom.csv", "\ufeffid,name\n1,a\n")
	s := openAll(t, path, Options{})
	assert.Equal(t, "id", s.Schema().Field(0).Name)
}

func TestQueryRange(t *testing.T) {
	path := numbered(t, 250)
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	s, err := Open(context.Background(), func() *source.FileConfig {
		c := source.NewFileConfig(path)
		c.Select("id", "label", "score")
		return c
	}(), Options{Allocator: mem, ChunkSize: 64, MaxChunks: 2})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	tests := []struct {
		start, end int
		wantRows   int
	}{
		{start: 0, end: 10, wantRows: 10},
		{start: 60, end: 70, wantRows: 10},
		{start: 10, end: 200, wantRows: 190},
		{start: 240, end: 1000, wantRows: 10},
		{start: 250, end: 250, wantRows: 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d-%d", tt.start, tt.end), func(t *testing.T) {
			rec, err := s.QueryRange(context.Background(), navigation.Range{
				Start: navigation.Sequential(tt.start),
				End:   navigation.Sequential(tt.end),
			})
			require.NoError(t, err)
			defer rec.Release()
			require.EqualValues(t, tt.wantRows, rec.NumRows())
			if tt.wantRows > 0 {
				ids := rec.Column(0).(*array.Int64)
				assert.Equal(t, int64(tt.start), ids.Value(0))
				assert.Equal(t, int64(tt.start+tt.wantRows-1), ids.Value(tt.wantRows-1))
			}
		})
	}

	assert.LessOrEqual(t, s.CacheStats().Chunks, 2)

	_, err = s.QueryRange(context.Background(), navigation.Range{
		Start: navigation.Categorical("a"), End: navigation.Categorical("b"),
	})
	assert.ErrorIs(t, err, source.ErrInvalidPosition)
}

func TestQueryAt_Window(t *testing.T) {
	path := numbered(t, 3000)
	s := openAll(t, path, Options{ChunkSize: 500})

	rec, err := s.QueryAt(context.Background(), navigation.Sequential(1500))
	require.NoError(t, err)
	defer rec.Release()
	require.EqualValues(t, 1000, rec.NumRows())
	assert.Equal(t, int64(1000), rec.Column(0).(*array.Int64).Value(0))

	head, err := s.QueryAt(context.Background(), navigation.Sequential(3))
	require.NoError(t, err)
	defer head.Release()
	assert.EqualValues(t, 503, head.NumRows())

	_, err = s.QueryAt(context.Background(), navigation.Temporal(5))
	assert.ErrorIs(t, err, source.ErrInvalidPosition)
}

func TestTemporalSource(t *testing.T) {
	path := testutil.WriteLines(t, "ticks.csv",
		"ts,price",
		"2024-01-01T00:00:00Z,10",
		"2024-01-01T00:01:00Z,11",
		"2024-01-01T00:02:00Z,12",
		"2024-01-01T00:03:00Z,13",
	)
	s := openAll(t, path, Options{})

	spec, err := s.NavigationSpec(context.Background())
	require.NoError(t, err)
	assert.Equal(t, navigation.KindTemporal, spec.Mode.Kind)
	require.NotNil(t, spec.TemporalBounds)
	base := int64(1704067200000)
	assert.Equal(t, navigation.Bounds{Min: base, Max: base + 180_000}, *spec.TemporalBounds)

	rec, err := s.QueryRange(context.Background(), navigation.Range{
		Start: navigation.Temporal(base + 60_000),
		End:   navigation.Temporal(base + 180_000),
	})
	require.NoError(t, err)
	defer rec.Release()
	require.EqualValues(t, 2, rec.NumRows())
	assert.Equal(t, int64(11), rec.Column(1).(*array.Int64).Value(0))

	ts := rec.Column(0).(*array.Timestamp)
	assert.Equal(t, arrow.Timestamp(base+60_000), ts.Value(0))
}

func TestTemporalSource_RowsWithoutTimestamp(t *testing.T) {
	path := testutil.WriteLines(t, "gaps.csv",
		"ts,price",
		"N/A,9",
		"2024-01-01T00:00:00Z,10",
		"2024-01-01T00:01:00Z,11",
		"2024-01-01T00:02:00Z,12",
	)
	s := openAll(t, path, Options{})
	base := int64(1704067200000)

	rec, err := s.QueryRange(context.Background(), navigation.Range{
		Start: navigation.Temporal(base + 60_000),
		End:   navigation.Temporal(base + 120_001),
	})
	require.NoError(t, err)
	defer rec.Release()
	require.EqualValues(t, 2, rec.NumRows())
	prices := rec.Column(1).(*array.Int64)
	assert.Equal(t, []int64{11, 12}, prices.Int64Values())

	tail, err := s.QueryRange(context.Background(), navigation.Range{
		Start: navigation.Temporal(base + 600_000),
		End:   navigation.Temporal(base + 700_000),
	})
	require.NoError(t, err)
	defer tail.Release()
	assert.EqualValues(t, 0, tail.NumRows())
}

func TestOpen_Cancelled(t *testing.T) {
	path := numbered(t, 10)
	cfg := source.NewFileConfig(path)
	cfg.Select("id")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Open(ctx, cfg, Options{Pool: source.NewWorkPool(1)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConcurrentReads(t *testing.T) {
	path := numbered(t, 1000)
	s := openAll(t, path, Options{ChunkSize: 100, MaxChunks: 3, Memory: cache.NewMemoryManager(0)})

	errs := make(chan error, 16)
	for i := range 16 {
		go func() {
			start := (i * 61) % 900
			rec, err := s.QueryRange(context.Background(), navigation.Range{
				Start: navigation.Sequential(start), End: navigation.Sequential(start + 100),
			})
			if err == nil {
				if rec.NumRows() != 100 || rec.Column(0).(*array.Int64).Value(0) != int64(start) {
					err = fmt.Errorf("bad window at %d", start)
				}
				rec.Release()
			}
			errs <- err
		}()
	}
	for range 16 {
		assert.NoError(t, <-errs)
	}
}

func TestReadPreview(t *testing.T) {
	path := testutil.WriteLines(t, "tabs.tsv", "a\tb\tc", "1\t2\t3", "4\t5\t6", "7\t8\t9")
	p, err := ReadPreview(context.Background(), source.NewFileConfig(path), 2)
	require.NoError(t, err)
	assert.Equal(t, '\t', p.Delimiter)
	assert.Equal(t, []string{"a", "b", "c"}, p.Header)
	assert.Equal(t, [][]string{{"1", "2", "3"}, {"4", "5", "6"}}, p.Rows)
}

func TestSniffLine(t *testing.T) {
	assert.Equal(t, ',', sniffLine("a,b,c"))
	assert.Equal(t, ';', sniffLine("a;b;c,d"))
	assert.Equal(t, '|', sniffLine("a|b"))
	assert.Equal(t, ',', sniffLine("single"))
}
