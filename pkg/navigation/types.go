// Package navigation tracks where a consumer currently is inside a dataset
// and tells interested parties when that changes.
//
// A dataset is addressed in one of three ways: by row index (Sequential),
// by timestamp in milliseconds (Temporal) or by category name (Categorical).
// Sources declare which one applies through a Spec; the Engine enforces it.
package navigation

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Kind identifies an addressing scheme.
type Kind int

// Addressing schemes.
const (
	KindSequential Kind = iota
	KindTemporal
	KindCategorical
)

func (k Kind) String() string {
	switch k {
	case KindSequential:
		return "sequential"
	case KindTemporal:
		return "temporal"
	case KindCategorical:
		return "categorical"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	if k < KindSequential || k > KindCategorical {
		return nil, fmt.Errorf("unknown navigation kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// ParseKind parses a kind name, case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sequential", "row", "":
		return KindSequential, nil
	case "temporal", "time":
		return KindTemporal, nil
	case "categorical", "category":
		return KindCategorical, nil
	}
	return 0, fmt.Errorf("unknown navigation kind %q", s)
}

// Mode is the addressing scheme of a dataset. Categories is only
// meaningful for KindCategorical and keeps the declared order.
type Mode struct {
	Kind       Kind
	Categories []string
}

// SequentialMode addresses rows by index.
func SequentialMode() Mode { return Mode{Kind: KindSequential} }

// TemporalMode addresses rows by timestamp.
func TemporalMode() Mode { return Mode{Kind: KindTemporal} }

// CategoricalMode addresses rows by category, in the given order.
func CategoricalMode(categories []string) Mode {
	return Mode{Kind: KindCategorical, Categories: slices.Clone(categories)}
}

// Equal reports whether two modes are the same, including category order.
func (m Mode) Equal(o Mode) bool {
	return m.Kind == o.Kind && slices.Equal(m.Categories, o.Categories)
}

func (m Mode) String() string {
	if m.Kind == KindCategorical {
		return fmt.Sprintf("categorical[%s]", strings.Join(m.Categories, ","))
	}
	return m.Kind.String()
}

// Position is a location in a dataset. Only the field matching Kind is used.
type Position struct {
	Kind      Kind   `json:"kind"`
	Timestamp int64  `json:"timestamp,omitempty"`
	Index     int    `json:"index,omitempty"`
	Category  string `json:"category,omitempty"`
}

// Sequential returns a row-index position.
func Sequential(index int) Position { return Position{Kind: KindSequential, Index: index} }

// Temporal returns a timestamp position in milliseconds.
func Temporal(ms int64) Position { return Position{Kind: KindTemporal, Timestamp: ms} }

// Categorical returns a category position.
func Categorical(name string) Position { return Position{Kind: KindCategorical, Category: name} }

func (p Position) String() string {
	switch p.Kind {
	case KindTemporal:
		return fmt.Sprintf("temporal(%d)", p.Timestamp)
	case KindCategorical:
		return fmt.Sprintf("categorical(%q)", p.Category)
	default:
		return fmt.Sprintf("sequential(%d)", p.Index)
	}
}

// ParsePosition parses a position written as "42" (row), "t:1700000000000"
// (timestamp in ms) or "c:name" (category).
func ParsePosition(s string) (Position, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "t:"):
		ms, err := strconv.ParseInt(s[2:], 10, 64)
		if err != nil {
			return Position{}, fmt.Errorf("invalid timestamp %q: %w", s[2:], err)
		}
		return Temporal(ms), nil
	case strings.HasPrefix(s, "c:"):
		if s[2:] == "" {
			return Position{}, fmt.Errorf("empty category")
		}
		return Categorical(s[2:]), nil
	}
	idx, err := strconv.Atoi(s)
	if err != nil {
		return Position{}, fmt.Errorf("invalid position %q: want a row number, t:<ms> or c:<category>", s)
	}
	return Sequential(idx), nil
}

// Range is a half-open selection [Start, End). Both ends are expected to
// share a Kind but that is checked by whoever consumes the range.
type Range struct {
	Start Position
	End   Position
}

// SameKind reports whether both ends use the same addressing scheme.
func (r Range) SameKind() bool { return r.Start.Kind == r.End.Kind }

func (r Range) String() string {
	return fmt.Sprintf("%s..%s", r.Start, r.End)
}

// Bounds is an inclusive timestamp interval in milliseconds.
type Bounds struct {
	Min int64
	Max int64
}

// Spec is the addressable space a source declares.
type Spec struct {
	Mode           Mode
	TotalRows      int
	TemporalBounds *Bounds
	Categories     []string
}

// Context is a point-in-time snapshot of engine state.
type Context struct {
	Mode      Mode
	Position  Position
	Range     *Range
	TotalRows int
}

// Equal compares two snapshots field by field.
func (c Context) Equal(o Context) bool {
	if !c.Mode.Equal(o.Mode) || c.Position != o.Position || c.TotalRows != o.TotalRows {
		return false
	}
	if c.Range == nil || o.Range == nil {
		return c.Range == nil && o.Range == nil
	}
	return *c.Range == *o.Range
}
