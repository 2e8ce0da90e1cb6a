package table

import (
	"strings"

	"github.com/leapstack-labs/leapview/pkg/schema"
)

// MapType maps a database column type name to the type used for its
// arrow column. Unknown names map to Utf8.
func MapType(dbType string) schema.DataType {
	t := strings.ToUpper(strings.TrimSpace(dbType))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = t[:i]
	}
	switch {
	case t == "":
		return schema.Utf8
	case strings.Contains(t, "INT") || strings.Contains(t, "SERIAL"):
		return schema.Int64
	case strings.Contains(t, "REAL"), strings.Contains(t, "FLOA"), strings.Contains(t, "DOUB"),
		strings.Contains(t, "NUMERIC"), strings.Contains(t, "DECIMAL"):
		return schema.Float64
	case strings.HasPrefix(t, "BOOL"):
		return schema.Boolean
	default:
		return schema.Utf8
	}
}

// IsTimeLike reports whether a column name suggests a time axis.
func IsTimeLike(name string) bool {
	n := strings.ToLower(name)
	return strings.Contains(n, "time") || strings.Contains(n, "date") ||
		n == "timestamp" || n == "created"
}
