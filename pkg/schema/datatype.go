// Package schema infers typed column layouts from sampled text rows.
package schema

import (
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
)

// DataType is a column type a user can declare or the detector can infer.
type DataType int

// Supported column types. The detector only ever infers Boolean, Timestamp,
// Int64, Float64 and Utf8; the rest are available as declared overrides.
const (
	Utf8 DataType = iota
	Boolean
	Int32
	Int64
	Float32
	Float64
	Date32
	Date64
	Timestamp
)

var typeNames = map[DataType]string{
	Utf8:      "utf8",
	Boolean:   "boolean",
	Int32:     "int32",
	Int64:     "int64",
	Float32:   "float32",
	Float64:   "float64",
	Date32:    "date32",
	Date64:    "date64",
	Timestamp: "timestamp",
}

var typeAliases = map[string]DataType{
	"string": Utf8,
	"text":   Utf8,
	"bool":   Boolean,
	"int":    Int64,
	"float":  Float64,
	"double": Float64,
	"date":   Date32,
}

func (t DataType) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("datatype(%d)", int(t))
}

// MarshalText implements encoding.TextMarshaler.
func (t DataType) MarshalText() ([]byte, error) {
	s, ok := typeNames[t]
	if !ok {
		return nil, fmt.Errorf("unknown data type %d", int(t))
	}
	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Names are case-insensitive.
func (t *DataType) UnmarshalText(b []byte) error {
	parsed, err := ParseDataType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseDataType resolves a type name such as "int64" or "timestamp".
func ParseDataType(name string) (DataType, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for t, s := range typeNames {
		if s == n {
			return t, nil
		}
	}
	if t, ok := typeAliases[n]; ok {
		return t, nil
	}
	return Utf8, fmt.Errorf("unknown data type %q", name)
}

// IsNumeric reports whether values of t order numerically.
func (t DataType) IsNumeric() bool {
	switch t {
	case Int32, Int64, Float32, Float64:
		return true
	}
	return false
}

// ArrowType returns the arrow type used to materialize columns of t.
func (t DataType) ArrowType() arrow.DataType {
	switch t {
	case Boolean:
		return arrow.FixedWidthTypes.Boolean
	case Int32:
		return arrow.PrimitiveTypes.Int32
	case Int64:
		return arrow.PrimitiveTypes.Int64
	case Float32:
		return arrow.PrimitiveTypes.Float32
	case Float64:
		return arrow.PrimitiveTypes.Float64
	case Date32:
		return arrow.FixedWidthTypes.Date32
	case Date64:
		return arrow.FixedWidthTypes.Date64
	case Timestamp:
		return arrow.FixedWidthTypes.Timestamp_ms
	default:
		return arrow.BinaryTypes.String
	}
}

// FromArrow maps an arrow type back to a DataType. Types with no
// counterpart map to Utf8.
func FromArrow(dt arrow.DataType) DataType {
	switch dt.ID() {
	case arrow.BOOL:
		return Boolean
	case arrow.INT32:
		return Int32
	case arrow.INT64:
		return Int64
	case arrow.FLOAT32:
		return Float32
	case arrow.FLOAT64:
		return Float64
	case arrow.DATE32:
		return Date32
	case arrow.DATE64:
		return Date64
	case arrow.TIMESTAMP:
		return Timestamp
	default:
		return Utf8
	}
}
