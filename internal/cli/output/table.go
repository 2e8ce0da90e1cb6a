package output

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// NullText is how null cells are shown in text, markdown and CSV output.
const NullText = "NULL"

// Table writes rows under header in the effective mode. JSON output is an
// array of objects keyed by header name.
func (r *Renderer) Table(header []string, rows [][]string) error {
	if r.EffectiveMode() == ModeJSON {
		out := make([]map[string]string, len(rows))
		for i, row := range rows {
			obj := make(map[string]string, len(header))
			for j, h := range header {
				if j < len(row) {
					obj[h] = row[j]
				}
			}
			out[i] = obj
		}
		return r.JSON(out)
	}

	t := r.newTable(header)
	for _, row := range rows {
		tr := make(table.Row, len(row))
		for i, v := range row {
			tr[i] = v
		}
		t.AppendRow(tr)
	}
	r.render(t)
	return nil
}

// Record writes an arrow record. Text output ends with a row count.
func (r *Renderer) Record(rec arrow.Record) error {
	names := make([]string, rec.NumCols())
	for i, f := range rec.Schema().Fields() {
		names[i] = f.Name
	}
	rows := int(rec.NumRows())

	if r.EffectiveMode() == ModeJSON {
		out := make([]map[string]any, rows)
		for i := range rows {
			obj := make(map[string]any, len(names))
			for j, col := range rec.Columns() {
				if col.IsNull(i) {
					obj[names[j]] = nil
					continue
				}
				obj[names[j]] = col.GetOneForMarshal(i)
			}
			out[i] = obj
		}
		return r.JSON(out)
	}

	if rows == 0 && r.EffectiveMode() == ModeText {
		r.Println("(0 rows)")
		return nil
	}

	t := r.newTable(names)
	for i := range rows {
		tr := make(table.Row, len(names))
		for j, col := range rec.Columns() {
			tr[j] = CellText(col, i)
		}
		t.AppendRow(tr)
	}
	r.render(t)
	if r.EffectiveMode() == ModeText {
		r.Printf("(%d rows)\n", rows)
	}
	return nil
}

// CellText formats one cell for display.
func CellText(col arrow.Array, i int) string {
	if col.IsNull(i) {
		return NullText
	}
	return col.ValueStr(i)
}

func (r *Renderer) newTable(header []string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	if r.isTTY {
		t.SetStyle(table.StyleRounded)
	} else {
		t.SetStyle(table.StyleLight)
	}
	t.Style().Format.Header = text.FormatDefault
	hr := make(table.Row, len(header))
	for i, h := range header {
		hr[i] = h
	}
	t.AppendHeader(hr)
	return t
}

func (r *Renderer) render(t table.Writer) {
	switch r.EffectiveMode() {
	case ModeMarkdown:
		t.RenderMarkdown()
	case ModeCSV:
		t.RenderCSV()
	default:
		t.Render()
	}
}

// Count formats n with a singular or plural noun.
func Count(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
