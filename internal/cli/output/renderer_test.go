package output

import (
	"bytes"
	"encoding/json"
	"regexp"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

func newTestRenderer(mode Mode, isTTY bool) (*Renderer, *bytes.Buffer, *bytes.Buffer) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	return NewRendererWithTTY(out, errOut, isTTY, mode), out, errOut
}

func sampleRecord(t *testing.T) arrow.Record {
	t.Helper()
	s := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
	b := array.NewRecordBuilder(memory.DefaultAllocator, s)
	defer b.Release()
	b.Field(0).(*array.Int64Builder).AppendValues([]int64{1, 2}, nil)
	b.Field(1).(*array.StringBuilder).Append("ann, jr")
	b.Field(1).(*array.StringBuilder).AppendNull()
	rec := b.NewRecord()
	t.Cleanup(rec.Release)
	return rec
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
	}{
		{"auto", ModeAuto},
		{"", ModeAuto},
		{"text", ModeText},
		{"table", ModeText},
		{"Markdown", ModeMarkdown},
		{"md", ModeMarkdown},
		{"json", ModeJSON},
		{"csv", ModeCSV},
		{"yaml", ModeAuto},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseMode(tt.in))
		})
	}
}

func TestEffectiveMode(t *testing.T) {
	r, _, _ := newTestRenderer(ModeAuto, true)
	assert.Equal(t, ModeText, r.EffectiveMode())

	r, _, _ = newTestRenderer(ModeAuto, false)
	assert.Equal(t, ModeMarkdown, r.EffectiveMode())

	r, _, _ = newTestRenderer(ModeJSON, true)
	assert.Equal(t, ModeJSON, r.EffectiveMode())

	r = NewRenderer(&bytes.Buffer{}, &bytes.Buffer{}, "")
	assert.False(t, r.IsTTY())
	assert.Equal(t, ModeMarkdown, r.EffectiveMode())
}

func TestRenderer_Record(t *testing.T) {
	tests := []struct {
		mode    Mode
		want    []string
		notWant []string
	}{
		{mode: ModeText, want: []string{"id", "name", "ann, jr", NullText, "(2 rows)"}},
		{mode: ModeMarkdown, want: []string{"| id | name |", "| 2 | NULL |"}, notWant: []string{"(2 rows)"}},
		{mode: ModeCSV, want: []string{"id,name", `1,"ann, jr"`, "2,NULL"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			r, out, _ := newTestRenderer(tt.mode, false)
			require.NoError(t, r.Record(sampleRecord(t)))
			for _, w := range tt.want {
				assert.Contains(t, out.String(), w)
			}
			for _, w := range tt.notWant {
				assert.NotContains(t, out.String(), w)
			}
			assert.False(t, ansiPattern.MatchString(out.String()))
		})
	}
}

func TestRenderer_RecordJSON(t *testing.T) {
	r, out, _ := newTestRenderer(ModeJSON, false)
	require.NoError(t, r.Record(sampleRecord(t)))

	var got []map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, []map[string]any{
		{"id": float64(1), "name": "ann, jr"},
		{"id": float64(2), "name": nil},
	}, got)
}

func TestRenderer_EmptyRecord(t *testing.T) {
	s := arrow.NewSchema([]arrow.Field{{Name: "id", Type: arrow.PrimitiveTypes.Int64}}, nil)
	b := array.NewRecordBuilder(memory.DefaultAllocator, s)
	defer b.Release()
	rec := b.NewRecord()
	defer rec.Release()

	r, out, _ := newTestRenderer(ModeText, false)
	require.NoError(t, r.Record(rec))
	assert.Equal(t, "(0 rows)\n", out.String())
}

func TestRenderer_Table(t *testing.T) {
	header := []string{"column", "type"}
	rows := [][]string{{"id", "int64"}, {"ts", "timestamp"}}

	r, out, _ := newTestRenderer(ModeJSON, false)
	require.NoError(t, r.Table(header, rows))
	var got []map[string]string
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, []map[string]string{{"column": "id", "type": "int64"}, {"column": "ts", "type": "timestamp"}}, got)

	r, out, _ = newTestRenderer(ModeMarkdown, false)
	require.NoError(t, r.Table(header, rows))
	assert.Contains(t, out.String(), "| ts | timestamp |")
}

func TestRenderer_Messages(t *testing.T) {
	r, out, errOut := newTestRenderer(ModeText, false)
	r.Header(1, "Schema")
	r.KeyValue("Rows", "10")
	r.Success("done")
	r.Muted("quiet")
	r.Warning("careful")
	r.Error("boom")

	assert.Equal(t, "Schema\nRows: 10\ndone\nquiet\n", out.String())
	assert.Equal(t, "warning: careful\nerror: boom\n", errOut.String())

	r, out, _ = newTestRenderer(ModeMarkdown, false)
	r.Header(2, "Schema")
	r.KeyValue("Rows", "10")
	assert.Equal(t, "## Schema\n- **Rows**: 10\n", out.String())
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "# Title", FormatHeader(0, "Title"))
	assert.Equal(t, "### Title", FormatHeader(3, "Title"))
	assert.Equal(t, "- **Key**: value", FormatKeyValue("Key", "value"))
	assert.Equal(t, "1 row", Count(1, "row"))
	assert.Equal(t, "3 rows", Count(3, "row"))
}
