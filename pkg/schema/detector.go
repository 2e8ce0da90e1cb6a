package schema

import (
	"cmp"
	"slices"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
)

// ColumnStats summarizes one column over the sampled rows.
type ColumnStats struct {
	NullCount     int    `json:"null_count"`
	DistinctCount int    `json:"distinct_count"`
	IsSorted      bool   `json:"is_sorted"`
	IsUnique      bool   `json:"is_unique"`
	Min           string `json:"min,omitempty"`
	Max           string `json:"max,omitempty"`
}

// Column is an inferred column definition.
type Column struct {
	Name     string      `json:"name"`
	Type     DataType    `json:"type"`
	Nullable bool        `json:"nullable"`
	Stats    ColumnStats `json:"stats"`
}

// Info is the result of schema detection.
type Info struct {
	Columns []Column `json:"columns"`
	// NavigationColumn names the suggested navigation column, or is empty.
	NavigationColumn string `json:"navigation_column,omitempty"`
}

// Column looks up a column by name.
func (i *Info) Column(name string) (Column, bool) {
	for _, c := range i.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Names returns column names in order.
func (i *Info) Names() []string {
	out := make([]string, len(i.Columns))
	for j, c := range i.Columns {
		out[j] = c.Name
	}
	return out
}

// HasTimestamp reports whether any column is timestamp-typed.
func (i *Info) HasTimestamp() bool {
	return slices.ContainsFunc(i.Columns, func(c Column) bool { return c.Type == Timestamp })
}

// ArrowSchema builds the arrow schema for the detected columns.
func (i *Info) ArrowSchema() *arrow.Schema {
	fields := make([]arrow.Field, len(i.Columns))
	for j, c := range i.Columns {
		fields[j] = arrow.Field{Name: c.Name, Type: c.Type.ArrowType(), Nullable: c.Nullable}
	}
	return arrow.NewSchema(fields, nil)
}

// SuggestNavigation returns the first column that is a timestamp, or a
// numeric column that is both sorted and unique.
func SuggestNavigation(cols []Column) string {
	for _, c := range cols {
		switch c.Type {
		case Timestamp:
			return c.Name
		case Int64, Float64:
			if c.Stats.IsSorted && c.Stats.IsUnique {
				return c.Name
			}
		}
	}
	return ""
}

// Detector infers column types from text samples.
type Detector struct {
	nulls NullConfig
}

// NewDetector creates a detector using the given null policy.
func NewDetector(nulls NullConfig) *Detector {
	return &Detector{nulls: nulls}
}

// Detect infers a column per header from rows. Rows shorter than the header
// contribute nulls for the missing cells.
func (d *Detector) Detect(headers []string, rows [][]string) *Info {
	info := &Info{Columns: make([]Column, len(headers))}
	values := make([]string, 0, len(rows))
	for j, name := range headers {
		values = values[:0]
		for _, row := range rows {
			if j < len(row) {
				values = append(values, row[j])
			} else {
				values = append(values, "")
			}
		}
		typ, stats := d.InferColumn(values)
		info.Columns[j] = Column{
			Name:     name,
			Type:     typ,
			Nullable: stats.NullCount > 0,
			Stats:    stats,
		}
	}
	info.NavigationColumn = SuggestNavigation(info.Columns)
	return info
}

// InferColumn picks a type for one column of raw values and computes its
// statistics. Nulls are excluded from probing. A column with no non-null
// values is Utf8.
func (d *Detector) InferColumn(raw []string) (DataType, ColumnStats) {
	var stats ColumnStats
	values := make([]string, 0, len(raw))
	isBool, isTimestamp, isInt, isFloat := true, true, true, true

	for _, v := range raw {
		if d.isNull(v) {
			stats.NullCount++
			continue
		}
		v = strings.TrimSpace(v)
		values = append(values, v)

		if isBool {
			_, isBool = ParseBool(v)
		}
		if isTimestamp {
			isTimestamp = LooksLikeTimestamp(v)
		}
		if isInt {
			_, isInt = ParseInt(v)
		}
		if isFloat {
			_, isFloat = ParseFloat(v)
		}
	}

	typ := Utf8
	switch {
	case len(values) == 0:
	case isBool:
		typ = Boolean
	case isTimestamp:
		typ = Timestamp
	case isInt:
		typ = Int64
	case isFloat:
		typ = Float64
	}

	distinct := make(map[string]struct{}, len(values))
	for _, v := range values {
		distinct[v] = struct{}{}
	}
	stats.DistinctCount = len(distinct)
	stats.IsUnique = len(values) > 0 && stats.DistinctCount == len(values)
	stats.IsSorted = isSorted(values, typ)
	stats.Min, stats.Max = minMax(values, typ)
	return typ, stats
}

func (d *Detector) isNull(v string) bool {
	return d.nulls.IsNull(v)
}

func isSorted(values []string, typ DataType) bool {
	if len(values) < 2 {
		return false
	}
	switch typ {
	case Int64:
		nums := make([]int64, len(values))
		for i, v := range values {
			nums[i], _ = ParseInt(v)
		}
		return slices.IsSorted(nums)
	case Float64:
		nums := make([]float64, len(values))
		for i, v := range values {
			nums[i], _ = ParseFloat(v)
		}
		return slices.IsSorted(nums)
	}
	return false
}

func minMax(values []string, typ DataType) (string, string) {
	if len(values) == 0 {
		return "", ""
	}
	compare := strings.Compare
	switch typ {
	case Int64:
		compare = func(a, b string) int {
			x, _ := ParseInt(a)
			y, _ := ParseInt(b)
			return cmp.Compare(x, y)
		}
	case Float64:
		compare = func(a, b string) int {
			x, _ := ParseFloat(a)
			y, _ := ParseFloat(b)
			return cmp.Compare(x, y)
		}
	}
	return slices.MinFunc(values, compare), slices.MaxFunc(values, compare)
}
