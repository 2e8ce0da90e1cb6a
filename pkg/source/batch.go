package source

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/leapstack-labs/leapview/pkg/schema"
)

// TextBuilder accumulates raw text rows into a record of a fixed schema.
// Cells that match the null policy or fail to parse become nulls.
type TextBuilder struct {
	rb    *array.RecordBuilder
	nulls schema.NullConfig
	width int
}

// NewTextBuilder creates a builder for s.
func NewTextBuilder(mem memory.Allocator, s *arrow.Schema, nulls schema.NullConfig) *TextBuilder {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	return &TextBuilder{
		rb:    array.NewRecordBuilder(mem, s),
		nulls: nulls,
		width: s.NumFields(),
	}
}

// Append adds one row. Missing trailing cells are null and extra cells are
// ignored.
func (b *TextBuilder) Append(cells []string) {
	for i := range b.width {
		f := b.rb.Field(i)
		if i >= len(cells) {
			f.AppendNull()
			continue
		}
		AppendText(f, cells[i], b.nulls)
	}
}

// Len returns the number of rows appended since the last NewRecord.
func (b *TextBuilder) Len() int {
	if b.width == 0 {
		return 0
	}
	return b.rb.Field(0).Len()
}

// NewRecord returns the accumulated rows and resets the builder.
func (b *TextBuilder) NewRecord() arrow.Record {
	return b.rb.NewRecord()
}

// Release frees the builder.
func (b *TextBuilder) Release() {
	b.rb.Release()
}

// AppendText parses raw according to the builder's type and appends it.
func AppendText(b array.Builder, raw string, nulls schema.NullConfig) {
	if nulls.IsNull(raw) {
		b.AppendNull()
		return
	}
	switch bb := b.(type) {
	case *array.StringBuilder:
		bb.Append(raw)
	case *array.BooleanBuilder:
		if v, ok := schema.ParseBool(raw); ok {
			bb.Append(v)
			return
		}
		bb.AppendNull()
	case *array.Int64Builder:
		if v, ok := schema.ParseInt(raw); ok {
			bb.Append(v)
			return
		}
		bb.AppendNull()
	case *array.Int32Builder:
		if v, ok := schema.ParseInt(raw); ok && v >= math.MinInt32 && v <= math.MaxInt32 {
			bb.Append(int32(v))
			return
		}
		bb.AppendNull()
	case *array.Float64Builder:
		if v, ok := schema.ParseFloat(raw); ok {
			bb.Append(v)
			return
		}
		bb.AppendNull()
	case *array.Float32Builder:
		if v, ok := schema.ParseFloat(raw); ok {
			bb.Append(float32(v))
			return
		}
		bb.AppendNull()
	case *array.TimestampBuilder:
		if ms, ok := schema.ParseTimestamp(raw); ok {
			bb.Append(arrow.Timestamp(ms))
			return
		}
		bb.AppendNull()
	case *array.Date32Builder:
		if ms, ok := schema.ParseTimestamp(raw); ok {
			bb.Append(arrow.Date32FromTime(time.UnixMilli(ms).UTC()))
			return
		}
		bb.AppendNull()
	case *array.Date64Builder:
		if ms, ok := schema.ParseTimestamp(raw); ok {
			bb.Append(arrow.Date64FromTime(time.UnixMilli(ms).UTC()))
			return
		}
		bb.AppendNull()
	default:
		b.AppendNull()
	}
}

// AppendValue coerces a value scanned from a database driver into the
// builder's type. Values that cannot be represented become nulls.
func AppendValue(b array.Builder, v any) {
	switch x := v.(type) {
	case nil:
		b.AppendNull()
		return
	case []byte:
		v = string(x)
	case int:
		v = int64(x)
	case int32:
		v = int64(x)
	case float32:
		v = float64(x)
	}

	switch bb := b.(type) {
	case *array.Int64Builder:
		switch x := v.(type) {
		case int64:
			bb.Append(x)
		case float64:
			if x == math.Trunc(x) && x >= math.MinInt64 && x < math.MaxInt64 {
				bb.Append(int64(x))
			} else {
				bb.AppendNull()
			}
		case bool:
			bb.Append(boolInt(x))
		case string:
			AppendText(bb, x, schema.NullConfig{})
		default:
			bb.AppendNull()
		}
	case *array.Float64Builder:
		switch x := v.(type) {
		case float64:
			bb.Append(x)
		case int64:
			bb.Append(float64(x))
		case string:
			AppendText(bb, x, schema.NullConfig{})
		default:
			bb.AppendNull()
		}
	case *array.BooleanBuilder:
		switch x := v.(type) {
		case bool:
			bb.Append(x)
		case int64:
			bb.Append(x != 0)
		case float64:
			bb.Append(x != 0)
		case string:
			AppendText(bb, x, schema.NullConfig{})
		default:
			bb.AppendNull()
		}
	case *array.StringBuilder:
		bb.Append(formatValue(v))
	case *array.TimestampBuilder:
		switch x := v.(type) {
		case time.Time:
			bb.Append(arrow.Timestamp(x.UnixMilli()))
		case int64:
			if schema.IsEpochSeconds(x) {
				x *= 1000
			}
			bb.Append(arrow.Timestamp(x))
		case string:
			AppendText(bb, x, schema.NullConfig{})
		default:
			bb.AppendNull()
		}
	default:
		AppendText(b, formatValue(v), schema.NullConfig{})
	}
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(x)
	}
}

// EmptyRecord returns a zero-row record of s.
func EmptyRecord(mem memory.Allocator, s *arrow.Schema) arrow.Record {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	rb := array.NewRecordBuilder(mem, s)
	defer rb.Release()
	return rb.NewRecord()
}

// Concat joins records that share schema s into one record. The inputs
// are not released.
func Concat(mem memory.Allocator, s *arrow.Schema, recs []arrow.Record) (arrow.Record, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	switch len(recs) {
	case 0:
		return EmptyRecord(mem, s), nil
	case 1:
		if err := checkWidth(s, recs[0]); err != nil {
			return nil, err
		}
		recs[0].Retain()
		return recs[0], nil
	}

	var rows int64
	for _, r := range recs {
		if err := checkWidth(s, r); err != nil {
			return nil, err
		}
		rows += r.NumRows()
	}

	cols := make([]arrow.Array, s.NumFields())
	defer func() {
		for _, c := range cols {
			if c != nil {
				c.Release()
			}
		}
	}()
	parts := make([]arrow.Array, len(recs))
	for i := range cols {
		for j, r := range recs {
			parts[j] = r.Column(i)
		}
		c, err := array.Concatenate(parts, mem)
		if err != nil {
			return nil, NewError(KindBatch, "", fmt.Sprintf("concatenating column %s", s.Field(i).Name), err)
		}
		cols[i] = c
	}
	return array.NewRecord(s, cols, rows), nil
}

func checkWidth(s *arrow.Schema, r arrow.Record) error {
	if int(r.NumCols()) != s.NumFields() {
		return NewError(KindBatch, "", fmt.Sprintf("record has %d columns, schema has %d", r.NumCols(), s.NumFields()), nil)
	}
	return nil
}
